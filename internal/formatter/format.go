// Package formatter renders CLI output as aligned tables or JSON.
package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates an --output value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (want table or json)", ErrUnknownFormat, s)
	}
}

// JSON writes v as indented JSON without HTML escaping.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false) // Don't escape < > & in content
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// LineEncoder writes one compact JSON object per line. It is safe for
// concurrent use so serve-mode responses never interleave.
type LineEncoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewLineEncoder creates an encoder writing to w.
func NewLineEncoder(w io.Writer) *LineEncoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &LineEncoder{enc: enc}
}

// Encode writes v followed by a newline.
func (e *LineEncoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(v)
}
