// Package jsonfield extracts the value of one string field from a JSON object
// while the object is still arriving.
//
// The model answers with a JSON object such as
//
//	{"command": "git status --short", "content": null, "error": null}
//
// but the text arrives a few characters at a time. An Extractor is fed the
// whole buffer received so far on every call and returns only the part of
// the target field that became final since the previous call, so callers can
// print it immediately instead of waiting for the closing brace.
package jsonfield

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ParseError reports malformed JSON inside the target field.
type ParseError struct {
	Field     string
	Offset    int
	Reason    string
	NotString bool // the value is a number, boolean or container
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed value for field %q at offset %d: %s", e.Field, e.Offset, e.Reason)
}

type targetState int

const (
	targetUnseen targetState = iota
	targetOpen
	targetClosed
	targetNull
)

// Extractor incrementally decodes one top-level string field.
// It is not safe for concurrent use.
type Extractor struct {
	field string

	pos     int // next unread byte of the buffer
	depth   int
	started bool // first '{' seen
	ended   bool // top-level object closed

	// Scanner state for strings other than the target value.
	inString   bool
	escaped    bool
	capturing  bool
	keyBuf     strings.Builder
	wantKey    bool
	pendingKey string
	awaiting   bool // after ':' at depth 1, before the value starts
	valueKey   string

	target targetState
	value  strings.Builder
	err    error
}

// New returns an Extractor for the named top-level field.
func New(field string) *Extractor {
	return &Extractor{field: field}
}

// Field returns the name of the target field.
func (e *Extractor) Field() string { return e.field }

// Found reports whether the target key has been seen with a string or null value.
func (e *Extractor) Found() bool { return e.target != targetUnseen }

// Closed reports whether the target value is complete.
func (e *Extractor) Closed() bool { return e.target == targetClosed || e.target == targetNull }

// Null reports whether the target value was the JSON literal null.
func (e *Extractor) Null() bool { return e.target == targetNull }

// Open reports whether the target string has started but not yet closed.
func (e *Extractor) Open() bool { return e.target == targetOpen }

// Value returns everything emitted so far.
func (e *Extractor) Value() string { return e.value.String() }

// Offset returns how many bytes of the buffer have been consumed.
func (e *Extractor) Offset() int { return e.pos }

// Feed scans buf, the complete buffer received so far, and returns the newly
// decoded characters of the target value. buf must extend the buffer passed
// on the previous call. Characters are held back while an escape sequence or
// a multi-byte rune is split at the end of buf.
func (e *Extractor) Feed(buf string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	if len(buf) < e.pos {
		return "", fmt.Errorf("buffer shrank from %d to %d bytes", e.pos, len(buf))
	}
	if e.Closed() || e.ended {
		e.pos = len(buf)
		return "", nil
	}

	var delta strings.Builder
	for e.pos < len(buf) {
		if e.target == targetOpen {
			n, err := e.decode(buf, &delta)
			if err != nil {
				e.err = err
				return "", err
			}
			if n == 0 {
				break
			}
			continue
		}
		if e.Closed() || e.ended {
			e.pos = len(buf)
			break
		}
		n, err := e.scan(buf)
		if err != nil {
			e.err = err
			return "", err
		}
		if n == 0 {
			break
		}
	}

	out := delta.String()
	e.value.WriteString(out)
	return out, nil
}

// scan consumes structural bytes outside the target value. It returns the
// number of bytes consumed; zero means more input is needed.
func (e *Extractor) scan(buf string) (int, error) {
	c := buf[e.pos]

	if e.inString {
		switch {
		case e.escaped:
			e.escaped = false
		case c == '\\':
			e.escaped = true
		case c == '"':
			e.inString = false
			if e.capturing {
				e.capturing = false
				e.pendingKey = e.keyBuf.String()
				e.keyBuf.Reset()
				e.wantKey = false
			}
			e.pos++
			return 1, nil
		}
		if e.capturing {
			e.keyBuf.WriteByte(c)
		}
		e.pos++
		return 1, nil
	}

	if !e.started {
		if c == '{' {
			e.started = true
			e.depth = 1
			e.wantKey = true
		}
		e.pos++
		return 1, nil
	}

	if e.awaiting && e.depth == 1 && !isSpace(c) {
		e.awaiting = false
		if e.valueKey == e.field {
			switch c {
			case '"':
				e.target = targetOpen
				e.pos++
				return 1, nil
			case 'n':
				if len(buf)-e.pos < 4 {
					e.awaiting = true
					return 0, nil
				}
				if buf[e.pos:e.pos+4] != "null" {
					return 0, &ParseError{Field: e.field, Offset: e.pos, Reason: "expected string or null", NotString: true}
				}
				e.target = targetNull
				e.pos += 4
				return 4, nil
			default:
				return 0, &ParseError{Field: e.field, Offset: e.pos, Reason: fmt.Sprintf("expected string, found %q", c), NotString: true}
			}
		}
	}

	switch c {
	case '"':
		e.inString = true
		if e.depth == 1 && e.wantKey {
			e.capturing = true
		}
	case '{', '[':
		e.depth++
	case '}', ']':
		e.depth--
		if e.depth == 0 {
			e.ended = true
		}
	case ':':
		if e.depth == 1 {
			e.awaiting = true
			e.valueKey = e.pendingKey
			e.pendingKey = ""
		}
	case ',':
		if e.depth == 1 {
			e.wantKey = true
		}
	}
	e.pos++
	return 1, nil
}

// decode consumes bytes of the open target string, writing decoded text to
// out. It returns the number of bytes consumed; zero means more input is needed.
func (e *Extractor) decode(buf string, out *strings.Builder) (int, error) {
	c := buf[e.pos]
	switch {
	case c == '"':
		e.target = targetClosed
		e.pos++
		return 1, nil
	case c == '\\':
		return e.decodeEscape(buf, out)
	case c < utf8.RuneSelf:
		out.WriteByte(c)
		e.pos++
		return 1, nil
	}

	if !utf8.FullRuneInString(buf[e.pos:]) {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(buf[e.pos:])
	if r == utf8.RuneError && size == 1 {
		out.WriteRune(utf8.RuneError)
	} else {
		out.WriteString(buf[e.pos : e.pos+size])
	}
	e.pos += size
	return size, nil
}

func (e *Extractor) decodeEscape(buf string, out *strings.Builder) (int, error) {
	rest := buf[e.pos:]
	if len(rest) < 2 {
		return 0, nil
	}
	switch rest[1] {
	case '"', '\\', '/':
		out.WriteByte(rest[1])
	case 'b':
		out.WriteByte('\b')
	case 'f':
		out.WriteByte('\f')
	case 'n':
		out.WriteByte('\n')
	case 'r':
		out.WriteByte('\r')
	case 't':
		out.WriteByte('\t')
	case 'u':
		return e.decodeUnicode(rest, out)
	default:
		return 0, &ParseError{Field: e.field, Offset: e.pos, Reason: fmt.Sprintf("invalid escape %q", "\\"+string(rest[1]))}
	}
	e.pos += 2
	return 2, nil
}

// decodeUnicode handles \uXXXX, joining UTF-16 surrogate pairs. Invalid
// surrogates decode to U+FFFD, matching encoding/json.
func (e *Extractor) decodeUnicode(rest string, out *strings.Builder) (int, error) {
	if len(rest) < 6 {
		if !hexPrefix(rest[2:]) {
			return 0, &ParseError{Field: e.field, Offset: e.pos, Reason: "invalid unicode escape"}
		}
		return 0, nil
	}
	r, ok := hex4(rest[2:6])
	if !ok {
		return 0, &ParseError{Field: e.field, Offset: e.pos, Reason: "invalid unicode escape"}
	}
	if !utf16.IsSurrogate(r) {
		out.WriteRune(r)
		e.pos += 6
		return 6, nil
	}

	// A high surrogate may be followed by its low half. Wait until we know.
	tail := rest[6:]
	if r < 0xDC00 && couldBeEscapeU(tail) {
		if len(tail) < 6 {
			return 0, nil
		}
		if r2, ok := hex4(tail[2:6]); ok {
			if dec := utf16.DecodeRune(r, r2); dec != utf8.RuneError {
				out.WriteRune(dec)
				e.pos += 12
				return 12, nil
			}
		}
	}
	out.WriteRune(utf8.RuneError)
	e.pos += 6
	return 6, nil
}

// couldBeEscapeU reports whether s is, or may still become, a \uXXXX escape.
func couldBeEscapeU(s string) bool {
	switch len(s) {
	case 0:
		return true
	case 1:
		return s[0] == '\\'
	}
	return s[0] == '\\' && s[1] == 'u' && hexPrefix(s[2:min(len(s), 6)])
}

func hexPrefix(s string) bool {
	for i := 0; i < len(s) && i < 4; i++ {
		if _, ok := hexVal(s[i]); !ok {
			return false
		}
	}
	return true
}

func hex4(s string) (rune, bool) {
	var r rune
	for i := 0; i < 4; i++ {
		v, ok := hexVal(s[i])
		if !ok {
			return 0, false
		}
		r = r<<4 | v
	}
	return r, true
}

func hexVal(c byte) (rune, bool) {
	switch {
	case c >= '0' && c <= '9':
		return rune(c - '0'), true
	case c >= 'a' && c <= 'f':
		return rune(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return rune(c-'A') + 10, true
	}
	return 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Extract decodes the named field from a complete or partial buffer in one
// shot. ok is true once the value is closed; a null value yields "" and ok.
func Extract(buf, field string) (value string, ok bool, err error) {
	e := New(field)
	if _, err := e.Feed(buf); err != nil {
		return "", false, err
	}
	return e.Value(), e.Closed(), nil
}
