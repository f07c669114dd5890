package parse

import (
	"bufio"
	"io"
	"strings"
)

const maxLineBytes = 1 << 20

// Lines reads a text source line by line, tracking 1-based line numbers.
// Carriage returns and a leading UTF-8 BOM are stripped.
type Lines struct {
	scanner *bufio.Scanner
	line    int
	pending *string
}

// NewLines wraps a reader.
func NewLines(r io.Reader) *Lines {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Lines{scanner: scanner}
}

// Next returns the next line, or io.EOF.
func (l *Lines) Next() (string, error) {
	if l.pending != nil {
		text := *l.pending
		l.pending = nil
		return text, nil
	}
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	l.line++
	text := strings.TrimRight(l.scanner.Text(), "\r")
	if l.line == 1 {
		text = strings.TrimPrefix(text, "\ufeff")
	}
	return text, nil
}

// Unread pushes the last line back; the line counter is unchanged.
func (l *Lines) Unread(text string) { l.pending = &text }

// Line returns the number of the line most recently returned by Next.
func (l *Lines) Line() int { return l.line }

// Split cuts a delimited line into trimmed cells, dropping surrounding quotes.
func Split(line, sep string) []string {
	cells := strings.Split(line, sep)
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if len(c) >= 2 && c[0] == '"' && c[len(c)-1] == '"' {
			c = c[1 : len(c)-1]
		}
		cells[i] = c
	}
	return cells
}

// IsBlank reports whether a line holds only whitespace or separators.
func IsBlank(line, sep string) bool {
	return strings.TrimSpace(strings.ReplaceAll(line, sep, "")) == ""
}

// ColumnKey normalizes a header name: lower case, letters and digits only.
func ColumnKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Cell returns cells[i] or "" when the row is short.
func Cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}
