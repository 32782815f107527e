// Package parser provides streaming JSONL parsing for Claude-style
// transcripts and groups the parsed messages into replayable turns.
package parser

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultMaxContentLength is the default truncation limit for content fields.
const DefaultMaxContentLength = 8000

// Message type constants for transcript entries.
const (
	msgTypeUser       = "user"
	msgTypeAssistant  = "assistant"
	msgTypeToolUse    = "tool_use"
	msgTypeToolResult = "tool_result"
)

// Error classification constants for parse errors.
const (
	errClassJSON     = "json"
	errClassSchema   = "schema"
	errClassEncoding = "encoding"
)

// ToolCall is one tool invocation or tool result block.
type ToolCall struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Error  bool           `json:"error,omitempty"`
}

// Message is one parsed transcript entry.
type Message struct {
	Type      string     `json:"type"`
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	SessionID string     `json:"session_id,omitempty"`
	Line      int        `json:"line"`
	Tools     []ToolCall `json:"tools,omitempty"`
}

// Parser handles streaming JSONL parsing with configurable options.
type Parser struct {
	// MaxContentLength is the maximum characters before truncation.
	MaxContentLength int

	// SkipMalformed skips malformed lines instead of recording errors.
	SkipMalformed bool
}

// NewParser creates a parser with default settings.
func NewParser() *Parser {
	return &Parser{
		MaxContentLength: DefaultMaxContentLength,
		SkipMalformed:    true,
	}
}

// rawMessage represents the raw JSON structure of a transcript line.
type rawMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Role    string `json:"role"`
		Content any    `json:"content"` // Can be string or array
	} `json:"message,omitempty"`
}

// ParseResult contains the result of parsing a JSONL stream.
type ParseResult struct {
	Messages       []Message
	TotalLines     int
	MalformedLines int
	Errors         []error

	// Checksum is SHA256 hash of the parsed content (first 16 hex chars).
	Checksum string

	// FilePath is the source file path (if parsed from file).
	FilePath string
}

// ParseError provides structured error information for transcript parsing failures.
type ParseError struct {
	Line       int    `json:"line"`
	Message    string `json:"message"`
	RawContent string `json:"raw_content,omitempty"`
	ErrorType  string `json:"error_type"` // "json", "schema", "encoding"
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s (%s)", e.Line, e.Message, e.ErrorType)
}

// Parse reads JSONL from the reader and returns parsed messages.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	result := &ParseResult{Messages: make([]Message, 0)}

	hasher := sha256.New()
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024) // 1MB max line size

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		result.TotalLines = lineNum

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		_, _ = hasher.Write(line)
		_, _ = hasher.Write([]byte("\n"))

		p.processLine(line, lineNum, result)
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scanner error: %w", err)
	}

	hash := hasher.Sum(nil)
	result.Checksum = hex.EncodeToString(hash[:8])
	return result, nil
}

// processLine parses a single JSONL line and appends the result or error.
func (p *Parser) processLine(line []byte, lineNum int, result *ParseResult) {
	msg, err := p.parseLine(line, lineNum)
	if err != nil {
		result.MalformedLines++
		if !p.SkipMalformed {
			result.Errors = append(result.Errors, &ParseError{
				Line:       lineNum,
				Message:    err.Error(),
				ErrorType:  classifyError(err),
				RawContent: truncateForError(string(line), 100),
			})
		}
		return
	}
	if msg != nil {
		result.Messages = append(result.Messages, *msg)
	}
}

// classifyError determines the error type for structured reporting.
func classifyError(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "cannot unmarshal"):
		return errClassSchema
	case strings.Contains(errStr, "invalid UTF-8"):
		return errClassEncoding
	default:
		return errClassJSON
	}
}

// truncateForError limits error context to a reasonable size.
func truncateForError(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ParseFile parses a JSONL file by path.
func (p *Parser) ParseFile(path string) (result *ParseResult, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err = p.Parse(f)
	if result != nil {
		result.FilePath = path
	}
	return result, err
}

// timestampFormats lists the formats to try when parsing timestamps.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
}

// parseTimestamp parses a timestamp string, trying multiple formats.
// Returns zero time if all formats fail.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if ts, err := time.Parse(format, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// parseLine parses a single JSON line. Non-conversation entries yield nil.
func (p *Parser) parseLine(line []byte, lineNum int) (*Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if raw.Type != msgTypeUser && raw.Type != msgTypeAssistant {
		return nil, nil
	}

	msg := &Message{
		Type:      raw.Type,
		Timestamp: parseTimestamp(raw.Timestamp),
		SessionID: raw.SessionID,
		Line:      lineNum,
	}
	if raw.Message != nil {
		msg.Role = raw.Message.Role
		switch content := raw.Message.Content.(type) {
		case string:
			msg.Content = p.truncate(content)
		case []any:
			msg.Content, msg.Tools = p.parseContentBlocks(content)
		}
	}
	return msg, nil
}

// parseContentBlocks extracts text and tool calls from a content block array.
func (p *Parser) parseContentBlocks(blocks []any) (string, []ToolCall) {
	var (
		text  []string
		tools []ToolCall
	)
	for _, block := range blocks {
		blockMap, ok := block.(map[string]any)
		if !ok {
			continue
		}
		switch blockMap["type"] {
		case "text":
			if s, ok := blockMap["text"].(string); ok {
				text = append(text, p.truncate(s))
			}
		case msgTypeToolUse:
			if tc := parseToolUse(blockMap); tc != nil {
				tools = append(tools, *tc)
			}
		case msgTypeToolResult:
			tools = append(tools, p.parseToolResult(blockMap))
		}
	}
	return strings.Join(text, "\n"), tools
}

// parseToolUse extracts tool call information from a tool_use block.
func parseToolUse(block map[string]any) *ToolCall {
	name, _ := block["name"].(string)
	if name == "" {
		return nil
	}
	tc := &ToolCall{Name: name}
	tc.ID, _ = block["id"].(string)
	if input, ok := block["input"].(map[string]any); ok {
		tc.Input = input
	}
	return tc
}

// parseToolResult extracts a tool_result block. Name is left as
// "tool_result"; Turns pairs it with its tool_use by ID.
func (p *Parser) parseToolResult(block map[string]any) ToolCall {
	tc := ToolCall{Name: msgTypeToolResult}
	tc.ID, _ = block["tool_use_id"].(string)
	if isError, ok := block["is_error"].(bool); ok && isError {
		tc.Error = true
	}
	tc.Output = p.extractToolResultContent(block["content"])
	return tc
}

// extractToolResultContent extracts text from a tool_result content field,
// which may be a plain string or an array of text blocks.
func (p *Parser) extractToolResultContent(content any) string {
	switch c := content.(type) {
	case string:
		return p.truncate(c)
	case []any:
		var out strings.Builder
		for _, item := range c {
			if itemMap, ok := item.(map[string]any); ok {
				if text, ok := itemMap["text"].(string); ok {
					out.WriteString(p.truncate(text))
				}
			}
		}
		return out.String()
	default:
		return ""
	}
}

// truncate limits content to MaxContentLength characters.
func (p *Parser) truncate(s string) string {
	if p.MaxContentLength <= 0 || len(s) <= p.MaxContentLength {
		return s
	}
	return s[:p.MaxContentLength] + "... [truncated]"
}
