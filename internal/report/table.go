package report

import (
	"strings"
	"unicode/utf8"
)

// table renders a Markdown table with every column padded to its widest cell.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: escapeCells(header)}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, escapeCells(cells))
}

// escapeCells keeps a literal pipe inside its cell.
func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

func (t *table) widths() []int {
	w := make([]int, len(t.header))
	for i, h := range t.header {
		w[i] = max(3, utf8.RuneCountInString(h))
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(w) {
				w[i] = max(w[i], utf8.RuneCountInString(c))
			}
		}
	}
	return w
}

func (t *table) writeTo(sb *strings.Builder) {
	w := t.widths()
	writeRow(sb, t.header, w)
	sep := make([]string, len(w))
	for i, n := range w {
		sep[i] = strings.Repeat("-", n)
	}
	writeRow(sb, sep, w)
	for _, r := range t.rows {
		writeRow(sb, r, w)
	}
}

func (t *table) String() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func writeRow(sb *strings.Builder, cells []string, widths []int) {
	sb.WriteByte('|')
	for i, n := range widths {
		var c string
		if i < len(cells) {
			c = cells[i]
		}
		sb.WriteByte(' ')
		sb.WriteString(c)
		sb.WriteString(strings.Repeat(" ", n-utf8.RuneCountInString(c)))
		sb.WriteString(" |")
	}
	sb.WriteByte('\n')
}
