package position

import (
	"fmt"
	"sort"
	"unicode/utf16"
	"unicode/utf8"
)

// Point is a zero-based (row, byte column) location in a document.
type Point struct {
	Row    int
	Column int
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

// Compare returns -1, 0 or 1.
func (p Point) Compare(o Point) int {
	switch {
	case p.Row < o.Row:
		return -1
	case p.Row > o.Row:
		return 1
	case p.Column < o.Column:
		return -1
	case p.Column > o.Column:
		return 1
	}
	return 0
}

func (p Point) Before(o Point) bool { return p.Compare(o) < 0 }

func (p Point) After(o Point) bool { return p.Compare(o) > 0 }

func MaxPoint(a, b Point) Point {
	if a.After(b) {
		return a
	}
	return b
}

// Range is end-exclusive for storage. Cursor membership uses Touches.
type Range struct {
	Start Point
	End   Point
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

// Touches reports whether a cursor at p is inside r or on either edge of it.
func (r Range) Touches(p Point) bool {
	return !p.Before(r.Start) && !p.After(r.End)
}

func (r Range) Empty() bool {
	return r.Start == r.End
}

// LineIndex maps between byte offsets and points for one version of a text.
type LineIndex struct {
	text  []byte
	lines []int
}

func NewLineIndex(text []byte) *LineIndex {
	lines := []int{0}
	for i, b := range text {
		if b == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &LineIndex{text: text, lines: lines}
}

func (li *LineIndex) LineCount() int {
	return len(li.lines)
}

func (li *LineIndex) Len() int {
	return len(li.text)
}

func (li *LineIndex) lineEnd(row int) int {
	if row+1 < len(li.lines) {
		return li.lines[row+1] - 1
	}
	return len(li.text)
}

// Point converts a byte offset, clamping it to the text.
func (li *LineIndex) Point(offset int) Point {
	offset = max(0, min(offset, len(li.text)))
	row := sort.Search(len(li.lines), func(i int) bool { return li.lines[i] > offset }) - 1
	return Point{Row: row, Column: offset - li.lines[row]}
}

// Offset converts a point to a byte offset, clamping out of range rows and columns.
func (li *LineIndex) Offset(p Point) int {
	if p.Row < 0 {
		return 0
	}
	if p.Row >= len(li.lines) {
		return len(li.text)
	}
	start := li.lines[p.Row]
	return start + max(0, min(p.Column, li.lineEnd(p.Row)-start))
}

// Clamp returns the closest point that exists in the text.
func (li *LineIndex) Clamp(p Point) Point {
	return li.Point(li.Offset(p))
}

func (li *LineIndex) End() Point {
	return li.Point(len(li.text))
}

// FromUTF16 converts an editor position (row, UTF-16 code unit column) to a byte point.
func (li *LineIndex) FromUTF16(row, character int) Point {
	if row < 0 {
		return Point{}
	}
	if row >= len(li.lines) {
		return li.End()
	}
	start := li.lines[row]
	line := li.text[start:li.lineEnd(row)]
	units, col := 0, 0
	for col < len(line) && units < character {
		r, size := utf8.DecodeRune(line[col:])
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > character {
			break
		}
		units += n
		col += size
	}
	return Point{Row: row, Column: col}
}

// ToUTF16 converts a byte point to (row, UTF-16 code unit column).
func (li *LineIndex) ToUTF16(p Point) (row, character int) {
	p = li.Clamp(p)
	start := li.lines[p.Row]
	line := li.text[start : start+p.Column]
	for len(line) > 0 {
		r, size := utf8.DecodeRune(line)
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		character += n
		line = line[size:]
	}
	return p.Row, character
}

// Edit is the byte/point delta of a single text replacement.
type Edit struct {
	StartByte   int
	OldEndByte  int
	NewEndByte  int
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}
