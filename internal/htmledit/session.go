// Package htmledit records byte-range edits against an immutable source string
// and reassembles them deterministically.
//
// Offsets always refer to the original source, never to partially edited text.
// Everything outside an edited range is copied through byte-for-byte.
package htmledit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrOverlap is returned when an edit intersects a previously recorded edit.
	ErrOverlap = errors.New("edit overlaps a previous edit")
	// ErrRange is returned when an edit has start > end or lies outside the source.
	ErrRange = errors.New("edit range out of bounds")
)

// Edit replaces source[Start:End] with Text. A zero-width edit is an insertion.
type Edit struct {
	Start int
	End   int
	Text  string

	seq int
}

func (e Edit) empty() bool { return e.Start == e.End }

// overlaps reports whether two edits claim the same bytes. Insertions at the
// boundary of a replaced range, or at the same point as another insertion, do
// not overlap.
func (e Edit) overlaps(o Edit) bool {
	switch {
	case e.empty() && o.empty():
		return false
	case e.empty():
		return o.Start < e.Start && e.Start < o.End
	case o.empty():
		return e.Start < o.Start && o.Start < e.End
	default:
		return e.Start < o.End && o.Start < e.End
	}
}

// Session accumulates edits over one source string. It is not safe for
// concurrent use; a session lives for a single transform call.
type Session struct {
	src      string
	edits    []Edit
	appended strings.Builder
}

// New creates a session over src.
func New(src string) *Session {
	return &Session{src: src}
}

// Overwrite replaces the original bytes [start, end) with text.
func (s *Session) Overwrite(start, end int, text string) error {
	if start < 0 || end < start || end > len(s.src) {
		return fmt.Errorf("%w: [%d,%d) in source of length %d", ErrRange, start, end, len(s.src))
	}
	e := Edit{Start: start, End: end, Text: text, seq: len(s.edits)}
	for _, prev := range s.edits {
		if e.overlaps(prev) {
			return fmt.Errorf("%w: [%d,%d) intersects [%d,%d)", ErrOverlap, start, end, prev.Start, prev.End)
		}
	}
	s.edits = append(s.edits, e)
	return nil
}

// Insert places text at pos without removing anything. Multiple insertions at
// the same position keep their recording order.
func (s *Session) Insert(pos int, text string) error {
	return s.Overwrite(pos, pos, text)
}

// Append adds text after the end of the document.
func (s *Session) Append(text string) {
	s.appended.WriteString(text)
}

// Edits returns the recorded edits in reassembly order.
func (s *Session) Edits() []Edit {
	sorted := make([]Edit, len(s.edits))
	copy(sorted, s.edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		// An insertion at p precedes a replacement starting at p.
		if a.empty() != b.empty() {
			return a.empty()
		}
		return a.seq < b.seq
	})
	return sorted
}

// String reassembles the final text: untouched spans of the source interleaved
// with edit replacements in offset order, followed by appended text.
func (s *Session) String() string {
	if len(s.edits) == 0 && s.appended.Len() == 0 {
		return s.src
	}

	var b strings.Builder
	b.Grow(len(s.src) + s.appended.Len())
	cursor := 0
	for _, e := range s.Edits() {
		b.WriteString(s.src[cursor:e.Start])
		b.WriteString(e.Text)
		cursor = e.End
	}
	b.WriteString(s.src[cursor:])
	b.WriteString(s.appended.String())
	return b.String()
}
