// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package texttab lays out plain-text tables.
package texttab

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Table accumulates rows of cells and formats them in aligned
// columns. Its methods return the Table so calls can be chained.
type Table struct {
	rows  [][]string
	align []Align
	rules map[int]bool
}

// Align is the alignment of a column.
type Align int

const (
	Left Align = iota
	Right
	Center
)

func (a Align) pad(s string, w int) string {
	n := w - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	switch a {
	case Right:
		return strings.Repeat(" ", n) + s
	case Center:
		return strings.Repeat(" ", n/2) + s + strings.Repeat(" ", n-n/2)
	}
	return s + strings.Repeat(" ", n)
}

// Row starts a new row holding cells.
func (t *Table) Row(cells ...string) *Table {
	t.rows = append(t.rows, append([]string(nil), cells...))
	return t
}

// Cell appends a cell to the current row.
func (t *Table) Cell(format string, args ...interface{}) *Table {
	if len(t.rows) == 0 {
		t.rows = append(t.rows, nil)
	}
	last := len(t.rows) - 1
	t.rows[last] = append(t.rows[last], fmt.Sprintf(format, args...))
	return t
}

// Rule draws a horizontal line under the current row.
func (t *Table) Rule() *Table {
	if t.rules == nil {
		t.rules = make(map[int]bool)
	}
	t.rules[len(t.rows)-1] = true
	return t
}

// SetAlign sets the alignment of column col. Columns are numbered
// from 0 and default to Left.
func (t *Table) SetAlign(col int, a Align) *Table {
	for len(t.align) <= col {
		t.align = append(t.align, Left)
	}
	t.align[col] = a
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Format writes t to w. Columns are separated by two spaces and
// trailing blanks are dropped.
func (t *Table) Format(w io.Writer) error {
	var widths []int
	for _, row := range t.rows {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := utf8.RuneCountInString(c); n > widths[i] {
				widths[i] = n
			}
		}
	}
	total := 0
	for i, n := range widths {
		if i > 0 {
			total += 2
		}
		total += n
	}

	var b strings.Builder
	for r, row := range t.rows {
		b.Reset()
		for i, c := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			a := Left
			if i < len(t.align) {
				a = t.align[i]
			}
			b.WriteString(a.pad(c, widths[i]))
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " ")); err != nil {
			return err
		}
		if t.rules[r] {
			if _, err := fmt.Fprintln(w, strings.Repeat("─", total)); err != nil {
				return err
			}
		}
	}
	return nil
}
