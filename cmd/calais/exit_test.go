package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iishyfishyy/calais/internal/completion"
	"github.com/iishyfishyy/calais/internal/config"
	"github.com/iishyfishyy/calais/internal/executor"
	"github.com/iishyfishyy/calais/internal/jsonfield"
	"github.com/iishyfishyy/calais/internal/llm"
	"github.com/iishyfishyy/calais/internal/session"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		out  string
	}{
		{name: "success", err: nil, code: 0},
		{name: "cancelled", err: fmt.Errorf("failed to generate command: %w", session.ErrCancelled), code: 130, out: "Interrupted."},
		{name: "command exit status", err: &executor.ExitError{Code: 3}, code: 3},
		{name: "missing key", err: config.ErrMissingAPIKey, code: 1, out: "OPENAI_API_KEY"},
		{name: "model refusal", err: fmt.Errorf("%w: no", session.ErrModelRefused), code: 1},
		{
			name: "unavailable",
			err:  fmt.Errorf("failed to generate command: %w", &completion.UnavailableError{Attempts: 4, Err: errors.New("503 overloaded")}),
			code: 1,
			out:  "did not respond after 4 attempts",
		},
		{
			name: "garbled",
			err:  &completion.TerminalError{Kind: llm.KindUnknown, Err: fmt.Errorf("failed to decode response: %w", &jsonfield.ParseError{Field: "command", Offset: 12, Reason: "unexpected character"})},
			code: 1,
			out:  "The response was garbled",
		},
		{name: "max tokens", err: &completion.TerminalError{Kind: llm.KindMaxTokens, Err: completion.ErrMaxTokens}, code: 1, out: "max_tokens"},
		{name: "auth", err: &completion.TerminalError{Kind: llm.KindAuth, Err: errors.New("401")}, code: 1, out: "calais configure"},
		{name: "other", err: errors.New("boom"), code: 1, out: "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Equal(t, tt.code, exitCode(tt.err, &out))
			if tt.out == "" {
				assert.Empty(t, out.String())
			} else {
				assert.Contains(t, out.String(), tt.out)
			}
		})
	}
}
