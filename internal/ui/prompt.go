package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"golang.org/x/term"
)

// ErrInterrupted is returned when the user interrupts a prompt.
var ErrInterrupted = errors.New("interrupted")

// Prompter reads one line of input from the user.
type Prompter interface {
	Ask(ctx context.Context, message string) (string, error)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewPrompter returns a survey prompter when in is a terminal and a plain
// line reader otherwise.
func NewPrompter(in *os.File, out io.Writer) Prompter {
	if IsTerminal(in) {
		return &SurveyPrompter{}
	}
	return NewLinePrompter(in, out)
}

// SurveyPrompter asks with an interactive survey input.
type SurveyPrompter struct{}

// Ask implements Prompter.
func (p *SurveyPrompter) Ask(ctx context.Context, message string) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInterrupted
	}
	var answer string
	prompt := &survey.Input{Message: strings.TrimRight(message, ": ")}
	if err := survey.AskOne(prompt, &answer); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return "", ErrInterrupted
		}
		return "", err
	}
	if ctx.Err() != nil {
		return "", ErrInterrupted
	}
	return answer, nil
}

type lineResult struct {
	line string
	err  error
}

// LinePrompter reads newline-terminated answers from a reader, for pipes
// and tests.
type LinePrompter struct {
	r       *bufio.Reader
	out     io.Writer
	pending chan lineResult // read still in flight from an interrupted Ask
}

// NewLinePrompter returns a prompter reading from in and writing prompts to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{r: bufio.NewReader(in), out: out}
}

// Ask implements Prompter. It returns io.EOF when input is exhausted.
func (p *LinePrompter) Ask(ctx context.Context, message string) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInterrupted
	}
	fmt.Fprint(p.out, message)

	if p.pending == nil {
		ch := make(chan lineResult, 1)
		p.pending = ch
		go func() {
			line, err := p.r.ReadString('\n')
			ch <- lineResult{line, err}
		}()
	}

	select {
	case <-ctx.Done():
		return "", ErrInterrupted
	case res := <-p.pending:
		p.pending = nil
		line := strings.TrimRight(res.line, "\r\n")
		if res.err != nil && line == "" {
			return "", res.err
		}
		return line, nil
	}
}
