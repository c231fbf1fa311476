package completion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iishyfishyy/calais/internal/jsonfield"
)

// Response fields the model is asked to fill.
const (
	FieldCommand = "command"
	FieldContent = "content"
	FieldError   = "error"
)

// Response is the decoded structured answer.
type Response struct {
	Command string
	Content string
	Error   string
}

// DecodeResponse decodes a complete response buffer. Text without any JSON
// object is treated as plain content. Non-string content or error values
// (such as "error": false) are read as empty.
func DecodeResponse(raw string) (Response, error) {
	if !strings.Contains(raw, "{") {
		return Response{Content: strings.TrimSpace(raw)}, nil
	}

	var resp Response
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{FieldCommand, &resp.Command},
		{FieldContent, &resp.Content},
		{FieldError, &resp.Error},
	} {
		v, _, err := jsonfield.Extract(raw, f.name)
		var perr *jsonfield.ParseError
		if errors.As(err, &perr) && perr.NotString && f.name != FieldCommand {
			continue
		}
		if err != nil {
			return Response{}, fmt.Errorf("failed to decode %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return resp, nil
}

// Empty reports whether no field carries text.
func (r Response) Empty() bool {
	return strings.TrimSpace(r.Command) == "" &&
		strings.TrimSpace(r.Content) == "" &&
		strings.TrimSpace(r.Error) == ""
}
