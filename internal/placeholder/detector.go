// Package placeholder finds <name> markers in streamed command text so the
// user can be asked for each value while the command is still arriving.
package placeholder

import (
	"fmt"
	"strings"
)

// Segment is a run of literal text, optionally followed by a placeholder.
type Segment struct {
	Text string
	Name string // empty when the segment carries no placeholder
	Ask  bool   // first unresolved occurrence of Name
}

// IsPlaceholder reports whether the segment ends with a placeholder.
func (s Segment) IsPlaceholder() bool { return s.Name != "" }

type part struct {
	text string
	name string
}

// Detector splits streamed text on <name> markers. A marker is '<', one or
// more characters other than '<' and '>', then '>'. It is not safe for
// concurrent use.
type Detector struct {
	parts  []part
	cur    strings.Builder
	tag    strings.Builder
	inTag  bool
	seen   map[string]bool
	values map[string]string
	order  []string
}

// New returns an empty Detector.
func New() *Detector {
	return &Detector{
		seen:   make(map[string]bool),
		values: make(map[string]string),
	}
}

// Feed consumes a delta and returns the segments it completed. Text after an
// unclosed '<' is held until the marker closes or is abandoned.
func (d *Detector) Feed(delta string) []Segment {
	var out []Segment
	for i := 0; i < len(delta); i++ {
		c := delta[i]
		if !d.inTag {
			if c == '<' {
				d.inTag = true
				d.tag.Reset()
				continue
			}
			d.cur.WriteByte(c)
			continue
		}

		switch c {
		case '>':
			d.inTag = false
			if d.tag.Len() == 0 {
				d.cur.WriteString("<>")
				continue
			}
			out = append(out, d.placeholder(d.tag.String()))
		case '<':
			// The earlier '<' was literal.
			d.cur.WriteByte('<')
			d.cur.WriteString(d.tag.String())
			d.tag.Reset()
		default:
			d.tag.WriteByte(c)
		}
	}
	if d.cur.Len() > 0 {
		out = append(out, d.text())
	}
	return out
}

// Flush ends the input and returns any held text as literal.
func (d *Detector) Flush() []Segment {
	if d.inTag {
		d.inTag = false
		d.cur.WriteByte('<')
		d.cur.WriteString(d.tag.String())
		d.tag.Reset()
	}
	if d.cur.Len() == 0 {
		return nil
	}
	return []Segment{d.text()}
}

func (d *Detector) text() Segment {
	s := d.cur.String()
	d.cur.Reset()
	d.parts = append(d.parts, part{text: s})
	return Segment{Text: s}
}

func (d *Detector) placeholder(name string) Segment {
	s := d.cur.String()
	d.cur.Reset()
	d.parts = append(d.parts, part{text: s, name: name})

	_, resolved := d.values[name]
	ask := !resolved && !d.seen[name]
	if !d.seen[name] {
		d.seen[name] = true
		if !contains(d.order, name) {
			d.order = append(d.order, name)
		}
	}
	return Segment{Text: s, Name: name, Ask: ask}
}

// Resolve records the value for name.
func (d *Detector) Resolve(name, value string) {
	d.values[name] = value
}

// Value returns the value recorded for name.
func (d *Detector) Value(name string) (string, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Names returns placeholder names in order of first appearance.
func (d *Detector) Names() []string {
	return append([]string(nil), d.order...)
}

// Pending returns names seen in the current text that have no value yet.
func (d *Detector) Pending() []string {
	var out []string
	for _, name := range d.order {
		if !d.seen[name] {
			continue
		}
		if _, ok := d.values[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Text returns the text fed so far with resolved placeholders substituted.
// Unresolved markers and held text are left as written.
func (d *Detector) Text() string {
	var b strings.Builder
	for _, p := range d.parts {
		b.WriteString(p.text)
		if p.name == "" {
			continue
		}
		if v, ok := d.values[p.name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString("<" + p.name + ">")
		}
	}
	b.WriteString(d.cur.String())
	if d.inTag {
		b.WriteString("<" + d.tag.String())
	}
	return b.String()
}

// Command returns the fed text with every placeholder replaced by its value.
func (d *Detector) Command() (string, error) {
	if pending := d.Pending(); len(pending) > 0 {
		return "", fmt.Errorf("placeholder <%s> has no value", pending[0])
	}
	return d.Text(), nil
}

// Reset discards the text fed so far but keeps resolved values.
func (d *Detector) Reset() {
	d.parts = nil
	d.cur.Reset()
	d.tag.Reset()
	d.inTag = false
	d.seen = make(map[string]bool)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
