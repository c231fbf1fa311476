package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/iishyfishyy/calais/internal/completion"
	"github.com/iishyfishyy/calais/internal/config"
	"github.com/iishyfishyy/calais/internal/executor"
	"github.com/iishyfishyy/calais/internal/jsonfield"
	"github.com/iishyfishyy/calais/internal/llm"
	"github.com/iishyfishyy/calais/internal/session"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// exitCode reports err on w and returns the process exit status.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return exitOK
	}

	var (
		exitErr  *executor.ExitError
		parseErr *jsonfield.ParseError
		termErr  *completion.TerminalError
		unavail  *completion.UnavailableError
	)
	switch {
	case errors.Is(err, session.ErrCancelled):
		fmt.Fprintln(w, "Interrupted.")
		return exitInterrupted
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, config.ErrMissingAPIKey):
		report(w, err.Error())
	case errors.Is(err, session.ErrModelRefused):
		// Already shown.
	case errors.As(err, &unavail):
		report(w, fmt.Sprintf("The service did not respond after %d attempts. Try again later. (%v)", unavail.Attempts, unavail.Err))
	case errors.As(err, &parseErr):
		report(w, fmt.Sprintf("The response was garbled: %v", parseErr))
	case errors.Is(err, completion.ErrMaxTokens):
		report(w, "The response was cut off. Try raising max_tokens in the config file.")
	case errors.As(err, &termErr) && termErr.Kind == llm.KindAuth:
		report(w, "The API key was rejected. Run 'calais configure' to set a new one.")
	default:
		report(w, fmt.Sprintf("Error: %v", err))
	}
	return exitFailure
}

func report(w io.Writer, msg string) {
	color.New(color.FgRed, color.Bold).Fprintf(w, "✗ %s\n", msg)
}
