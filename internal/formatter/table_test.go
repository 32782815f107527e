package formatter

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTable_BasicOutput(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "ID", "SCORE", "STATUS")
	tbl.AddRow("gv-1", "0.82", "validated")
	tbl.AddRow("gv-2", "0.40", "candidate")
	if err := tbl.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ID", "SCORE", "STATUS", "--", "gv-1", "candidate"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}

	// header, separator, 2 data rows
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Errorf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
}

func TestTable_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTable(&buf, "A", "B").Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty output for table with no rows, got:\n%s", buf.String())
	}
}

func TestTable_Truncate(t *testing.T) {
	tests := []struct {
		name  string
		width int
		value string
		want  string
		gone  string
	}{
		{"ellipsis", 8, "abcdefghijklmnop", "abcde...", "abcdefghijklmnop"},
		{"narrow slices without ellipsis", 2, "abcdef", "ab", "abc"},
		{"exactly at max", 5, "abcde", "abcde", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tbl := NewTable(&buf, "ID", "VALUE").SetMaxWidth(0, tt.width)
			tbl.AddRow(tt.value, "ok")
			if err := tbl.Render(); err != nil {
				t.Fatalf("Render: %v", err)
			}
			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected %q in output:\n%s", tt.want, out)
			}
			if tt.gone != "" && strings.Contains(out, tt.gone) {
				t.Errorf("%q should have been truncated:\n%s", tt.gone, out)
			}
		})
	}
}

func TestTable_MissingValues(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "A", "B", "C")
	tbl.AddRow("only-one")
	if err := tbl.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "only-one") {
		t.Errorf("expected value in output:\n%s", buf.String())
	}
}

func TestTable_SeparatorMatchesHeaderLength(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "SHORT", "LONGHEADER")
	tbl.AddRow("x", "y")
	if err := tbl.Render(); err != nil {
		t.Fatalf("Render: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	sepFields := strings.Fields(lines[1])
	if len(sepFields) != 2 || sepFields[0] != "-----" || sepFields[1] != "----------" {
		t.Errorf("separator = %q", lines[1])
	}
}

func TestKeyValues(t *testing.T) {
	var buf bytes.Buffer
	if err := KeyValues(&buf, [][2]string{{"Agent", "main"}, {"Last entropy", "0.40"}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if strings.Index(lines[0], "main") != strings.Index(lines[1], "0.40") {
		t.Errorf("values not aligned:\n%s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, " json ": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("yaml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(yaml) error = %v", err)
	}
}

func TestJSONAndLineEncoder(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, map[string]string{"tag": "<b>"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<b>") || !strings.Contains(buf.String(), "\n  ") {
		t.Errorf("JSON output = %q", buf.String())
	}

	buf.Reset()
	enc := NewLineEncoder(&buf)
	_ = enc.Encode(map[string]int{"a": 1})
	_ = enc.Encode(map[string]int{"b": 2})
	if buf.String() != "{\"a\":1}\n{\"b\":2}\n" {
		t.Errorf("line output = %q", buf.String())
	}
}
