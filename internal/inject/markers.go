package inject

import "strings"

// Boundary markers around every injected block.
const (
	BeginMarker = "<!-- driftwatch:begin -->"
	EndMarker   = "<!-- driftwatch:end -->"
)

// Wrap surrounds body with the boundary markers.
func Wrap(body string) string {
	return BeginMarker + "\n" + strings.TrimRight(body, "\n") + "\n" + EndMarker + "\n"
}

// Strip removes every marked block from text so injected context is never
// scored as user input. An unterminated block runs to the end of text.
func Strip(text string) string {
	if !strings.Contains(text, BeginMarker) {
		return text
	}
	var b strings.Builder
	rest := text
	for {
		i := strings.Index(rest, BeginMarker)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		rest = rest[i+len(BeginMarker):]
		j := strings.Index(rest, EndMarker)
		if j < 0 {
			break
		}
		rest = rest[j+len(EndMarker):]
	}
	return strings.TrimSpace(b.String())
}

// Unwrap returns the body of a block produced by Wrap.
func Unwrap(block string) string {
	s := strings.TrimSpace(block)
	s = strings.TrimPrefix(s, BeginMarker)
	s = strings.TrimSuffix(s, EndMarker)
	return strings.TrimSpace(s)
}
