// Package session drives one interactive run: it streams a command from the
// model, asks for placeholder values as they appear, and lets the user run,
// explain, copy or discuss the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/iishyfishyy/calais/internal/completion"
	"github.com/iishyfishyy/calais/internal/llm"
	"github.com/iishyfishyy/calais/internal/placeholder"
	"github.com/iishyfishyy/calais/internal/prompt"
	"github.com/iishyfishyy/calais/internal/safety"
	"github.com/iishyfishyy/calais/internal/ui"
)

var (
	// ErrCancelled is returned when the user interrupts the run.
	ErrCancelled = completion.ErrCancelled

	// ErrModelRefused is matched by errors for responses that set the
	// error field.
	ErrModelRefused = errors.New("the model declined the request")
)

const (
	menuCommand = "[r]un, (e)xplain, (c)opy, (q)uit, or continue chatting: "
	menuContent = "[q]uit, or continue chatting: "
	menuChat    = "> Prompt ([q] to quit): "
)

// Runner executes a shell command.
type Runner interface {
	Run(ctx context.Context, command string) error
}

// Options configures a Session.
type Options struct {
	Client   *completion.Client
	Prompter ui.Prompter
	Printer  *ui.Printer
	Runner   Runner
	Checker  *safety.Checker
	Prompts  *prompt.Builder

	// Copy puts text on the clipboard. Defaults to the system clipboard.
	Copy func(string) error

	Model       string
	MaxTokens   int
	Temperature float32

	Log *zap.Logger
}

// Session runs the interaction state machine.
type Session struct {
	opts  Options
	log   *zap.Logger
	state State
	trace []State
}

// New returns a Session.
func New(opts Options) *Session {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Checker == nil {
		opts.Checker = safety.New()
	}
	if opts.Prompts == nil {
		opts.Prompts = &prompt.Builder{Env: prompt.DetectEnvironment()}
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	return &Session{opts: opts, log: opts.Log.Named("session"), state: StateIdle}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

func (s *Session) transition(to State) {
	s.log.Debug("state transition", zap.Stringer("from", s.state), zap.Stringer("to", to))
	s.state = to
	s.trace = append(s.trace, to)
}

// Run generates a command for request and handles the user's choices until
// the command runs or the user quits. conv receives every turn.
func (s *Session) Run(ctx context.Context, conv *Conversation, request string) (Outcome, error) {
	s.log = s.log.With(zap.String("session", conv.ID))
	if conv.Len() == 0 {
		conv.Add(llm.RoleSystem, s.opts.Prompts.System(request))
	}

	turn := request
	for {
		s.transition(StateGenerating)
		conv.Add(llm.RoleUser, turn)

		resp, command, err := s.generate(ctx, conv)
		if err != nil {
			var unsafe *safety.UnsafeError
			if errors.As(err, &unsafe) {
				return s.refuse(unsafe), nil
			}
			return OutcomeQuit, err
		}

		if resp.Error != "" {
			s.opts.Printer.Error("%s", resp.Error)
			s.transition(StateQuitting)
			return OutcomeQuit, fmt.Errorf("%w: %s", ErrModelRefused, resp.Error)
		}

		if command == "" {
			next, ok, err := s.content(ctx)
			if err != nil || !ok {
				return OutcomeQuit, err
			}
			turn = next
			s.transition(StateChatting)
			continue
		}

		if err := s.opts.Checker.Check(command); err != nil {
			var unsafe *safety.UnsafeError
			if errors.As(err, &unsafe) {
				return s.refuse(unsafe), nil
			}
			return OutcomeQuit, err
		}

		outcome, next, err := s.present(ctx, conv, command)
		if err != nil || next == "" {
			return outcome, err
		}
		turn = next
	}
}

// generate streams the command and content fields, resolving placeholders
// on the way, and returns the decoded response with the substituted command.
func (s *Session) generate(ctx context.Context, conv *Conversation) (completion.Response, string, error) {
	p := s.opts.Printer
	det := placeholder.New()
	var line strings.Builder // command text shown so far, values substituted
	field := ""

	req := s.request(conv, completion.FieldCommand)
	req.Also = []string{completion.FieldContent}
	stream := s.opts.Client.Stream(ctx, req)
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.EnsureNewline()
			return completion.Response{}, "", fmt.Errorf("failed to generate command: %w", err)
		}

		if ev.Kind == completion.EventRestart {
			s.log.Debug("response restarted")
			p.EnsureNewline()
			p.Warning("Connection interrupted, retrying...")
			det.Reset()
			line.Reset()
			field = ""
			continue
		}
		if ev.Field != field {
			p.EnsureNewline()
			field = ev.Field
		}
		if ev.Field != completion.FieldCommand {
			p.Print(ev.Text)
			continue
		}
		for _, seg := range det.Feed(ev.Text) {
			if err := s.segment(ctx, det, seg, &line); err != nil {
				return completion.Response{}, "", err
			}
		}
	}
	for _, seg := range det.Flush() {
		if err := s.segment(ctx, det, seg, &line); err != nil {
			return completion.Response{}, "", err
		}
	}
	p.EnsureNewline()

	raw := stream.Raw()
	conv.Add(llm.RoleAssistant, raw)
	resp, err := completion.DecodeResponse(raw)
	if err != nil {
		return completion.Response{}, "", fmt.Errorf("the response was garbled: %w", err)
	}
	if strings.TrimSpace(resp.Command) == "" {
		return resp, "", nil
	}

	command, err := det.Command()
	if err != nil {
		return resp, "", err
	}
	if strings.TrimSpace(command) == "" {
		command = resp.Command
	}
	return resp, strings.TrimSpace(command), nil
}

// segment prints streamed command text and asks for each new placeholder
// value. line holds the command text printed so far.
func (s *Session) segment(ctx context.Context, det *placeholder.Detector, seg placeholder.Segment, line *strings.Builder) error {
	p := s.opts.Printer
	p.Print(seg.Text)
	line.WriteString(seg.Text)
	if !seg.IsPlaceholder() {
		return nil
	}

	if v, ok := det.Value(seg.Name); ok && !seg.Ask {
		p.Print(v)
		line.WriteString(v)
		return nil
	}

	s.transition(StateAwaitingPlaceholder)
	p.Print("<" + seg.Name + ">")
	p.EnsureNewline()

	value, err := s.opts.Prompter.Ask(ctx, fmt.Sprintf("Enter the value for <%s>: ", seg.Name))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, ui.ErrInterrupted) || ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("failed to read placeholder value: %w", err)
	}
	if err := s.opts.Checker.CheckValue(value); err != nil {
		return err
	}
	det.Resolve(seg.Name, value)
	s.log.Debug("placeholder resolved", zap.String("name", seg.Name))

	s.transition(StateGenerating)
	line.WriteString(value)
	p.Print(line.String())
	return nil
}

// content offers to continue after a content-only answer, which has
// already been streamed. It returns the next user turn, or ok=false when
// the user quits.
func (s *Session) content(ctx context.Context) (string, bool, error) {
	answer, err := s.ask(ctx, menuContent)
	if err != nil {
		return "", false, err
	}
	if isQuit(answer) || answer == "" {
		s.transition(StateQuitting)
		return "", false, nil
	}
	return answer, true, nil
}

// present offers the command until the user runs it, quits, or types a new
// request. A non-empty next is the new user turn.
func (s *Session) present(ctx context.Context, conv *Conversation, command string) (Outcome, string, error) {
	p := s.opts.Printer
	for {
		s.transition(StatePresenting)
		p.Command(command)

		answer, err := s.ask(ctx, menuCommand)
		if err != nil {
			return OutcomeQuit, "", err
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "", "r", "run":
			s.transition(StateRunning)
			if err := s.opts.Runner.Run(ctx, command); err != nil {
				if ctx.Err() != nil {
					return OutcomeRan, "", ErrCancelled
				}
				return OutcomeRan, "", err
			}
			return OutcomeRan, "", nil
		case "q", "quit", "exit":
			s.transition(StateQuitting)
			return OutcomeQuit, "", nil
		case "e", "ex", "explain":
			s.transition(StateExplaining)
			if err := s.explain(ctx, conv, command); err != nil {
				return OutcomeQuit, "", err
			}
		case "c", "copy":
			if err := s.opts.Copy(command); err != nil {
				p.Error("Failed to copy to clipboard: %v", err)
			} else {
				p.Success("Copied to clipboard")
			}
		default:
			s.transition(StateChatting)
			return OutcomeQuit, answer, nil
		}
	}
}

// explain streams an explanation of command.
func (s *Session) explain(ctx context.Context, conv *Conversation, command string) error {
	conv.Add(llm.RoleUser, prompt.Explain(command))
	raw, err := s.streamText(ctx, s.request(conv, completion.FieldContent))
	if err != nil {
		return fmt.Errorf("failed to explain command: %w", err)
	}
	conv.Add(llm.RoleAssistant, raw)
	return nil
}

// Chat runs chat-only mode: plain text answers until the user quits.
func (s *Session) Chat(ctx context.Context, conv *Conversation, request string) error {
	s.log = s.log.With(zap.String("session", conv.ID))
	if conv.Len() == 0 {
		conv.Add(llm.RoleSystem, s.opts.Prompts.Chat())
	}

	turn := request
	for {
		s.transition(StateChatting)
		conv.Add(llm.RoleUser, turn)
		raw, err := s.streamText(ctx, s.request(conv, ""))
		if err != nil {
			return fmt.Errorf("failed to chat: %w", err)
		}
		conv.Add(llm.RoleAssistant, raw)

		answer, err := s.ask(ctx, menuChat)
		if err != nil {
			return err
		}
		if answer == "" || isQuit(answer) {
			s.transition(StateQuitting)
			return nil
		}
		turn = answer
	}
}

// streamText prints every delta of req and returns the raw response.
func (s *Session) streamText(ctx context.Context, req completion.Request) (string, error) {
	p := s.opts.Printer
	stream := s.opts.Client.Stream(ctx, req)
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.EnsureNewline()
			return "", err
		}
		if ev.Kind == completion.EventRestart {
			p.EnsureNewline()
			p.Warning("Connection interrupted, retrying...")
			continue
		}
		p.Print(ev.Text)
	}
	p.EnsureNewline()
	return stream.Raw(), nil
}

func (s *Session) request(conv *Conversation, field string) completion.Request {
	return completion.Request{
		Messages:    conv.Messages(),
		Field:       field,
		Model:       s.opts.Model,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
}

// ask reads one answer. End of input counts as quitting.
func (s *Session) ask(ctx context.Context, message string) (string, error) {
	answer, err := s.opts.Prompter.Ask(ctx, message)
	switch {
	case err == nil:
		return strings.TrimSpace(answer), nil
	case errors.Is(err, io.EOF):
		return "q", nil
	case errors.Is(err, ui.ErrInterrupted), ctx.Err() != nil:
		return "", ErrCancelled
	default:
		return "", fmt.Errorf("failed to read input: %w", err)
	}
}

func (s *Session) refuse(err *safety.UnsafeError) Outcome {
	s.log.Debug("refused unsafe input", zap.String("pattern", err.Pattern))
	s.opts.Printer.Error("Unsafe input %q. Refusing to continue.", err.Input)
	s.transition(StateQuitting)
	return OutcomeRefused
}

func isQuit(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "q", "quit", "exit":
		return true
	}
	return false
}
