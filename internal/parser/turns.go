package parser

import (
	"strings"
	"time"
)

// Turn is one user message with the assistant output that followed it.
type Turn struct {
	SessionID string
	Timestamp time.Time
	User      string
	Response  string

	// Tools are the calls made while answering, in order, with outputs
	// filled in from their tool_result blocks.
	Tools []ToolCall
}

// Turns groups messages into turns. A user message with text opens a turn;
// user messages that only carry tool results feed outputs back to the
// matching calls. Assistant output before the first user message is dropped.
func Turns(messages []Message) []Turn {
	var (
		turns   []Turn
		current *Turn
		byID    map[string]int
	)
	flush := func() {
		if current != nil {
			current.Response = strings.TrimSpace(current.Response)
			turns = append(turns, *current)
		}
	}

	for _, m := range messages {
		switch m.Type {
		case msgTypeUser:
			if strings.TrimSpace(m.Content) != "" {
				flush()
				current = &Turn{SessionID: m.SessionID, Timestamp: m.Timestamp, User: m.Content}
				byID = make(map[string]int)
			}
			if current == nil {
				continue
			}
			for _, tc := range m.Tools {
				if tc.Name != msgTypeToolResult {
					continue
				}
				if i, ok := byID[tc.ID]; ok {
					current.Tools[i].Output = tc.Output
					current.Tools[i].Error = tc.Error
				}
			}
		case msgTypeAssistant:
			if current == nil {
				continue
			}
			if m.Content != "" {
				if current.Response != "" {
					current.Response += "\n"
				}
				current.Response += m.Content
			}
			for _, tc := range m.Tools {
				if tc.ID != "" {
					byID[tc.ID] = len(current.Tools)
				}
				current.Tools = append(current.Tools, tc)
			}
		}
	}
	flush()
	return turns
}
