package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/iishyfishyy/calais/internal/completion"
	"github.com/iishyfishyy/calais/internal/llm"
	"github.com/iishyfishyy/calais/internal/prompt"
	"github.com/iishyfishyy/calais/internal/ui"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	commands []string
	err      error
}

func (r *fakeRunner) Run(_ context.Context, command string) error {
	r.commands = append(r.commands, command)
	return r.err
}

type promptFunc func(ctx context.Context, message string) (string, error)

func (f promptFunc) Ask(ctx context.Context, message string) (string, error) { return f(ctx, message) }

// writeRecorder keeps every write separately.
type writeRecorder struct {
	writes []string
}

func (w *writeRecorder) Write(p []byte) (int, error) {
	w.writes = append(w.writes, string(p))
	return len(p), nil
}

type harness struct {
	t         *testing.T
	transport *llm.Scripted
	runner    *fakeRunner
	out       bytes.Buffer
	prompts   bytes.Buffer
	copied    []string
	session   *Session
}

func newHarness(t *testing.T, input string, scripts ...llm.Script) *harness {
	t.Helper()
	return newHarnessWithPolicy(t, completion.DefaultPolicy(), input, scripts...)
}

func newHarnessWithPolicy(t *testing.T, policy completion.RetryPolicy, input string, scripts ...llm.Script) *harness {
	t.Helper()
	h := &harness{t: t, transport: llm.NewScripted(scripts...), runner: &fakeRunner{}}
	log := zaptest.NewLogger(t)
	noSleep := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	h.session = New(Options{
		Client:   completion.New(h.transport, policy, log, completion.WithSleeper(noSleep)),
		Prompter: ui.NewLinePrompter(strings.NewReader(input), &h.prompts),
		Printer:  ui.NewPrinter(&h.out, false),
		Runner:   h.runner,
		Prompts:  &prompt.Builder{Env: prompt.Environment{OS: "linux", Shell: "/bin/bash"}},
		Copy: func(s string) error {
			h.copied = append(h.copied, s)
			return nil
		},
		Model: "test-model",
		Log:   log,
	})
	return h
}

func (h *harness) run(request string) (Outcome, error, *Conversation) {
	conv := NewConversation("")
	outcome, err := h.session.Run(context.Background(), conv, request)
	return outcome, err, conv
}

func TestRun_StreamsAndRuns(t *testing.T) {
	h := newHarness(t, "r\n", llm.Script{Chunks: llm.TextChunks(
		`{"command": "git status --sh`,
		`ort"} `,
	)})

	outcome, err, conv := h.run("list uncommitted files")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, outcome)
	assert.Equal(t, []string{"git status --short"}, h.runner.commands)

	assert.Equal(t, "git status --short\nCommand: git status --short\n", h.out.String())
	assert.Contains(t, h.prompts.String(), menuCommand)
	assert.Equal(t, []State{StateGenerating, StatePresenting, StateRunning}, h.session.trace)

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Shell: /bin/bash")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "list uncommitted files"}, msgs[1])
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)

	reqs := h.transport.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSON)
	assert.Equal(t, "test-model", reqs[0].Model)
}

func TestRun_ContentShownBeforeCommand(t *testing.T) {
	h := newHarness(t, "q\n", llm.Script{Chunks: llm.TextChunks(
		`{"command": "git status --sh`,
		`ort", "content": "Shows`,
		` changes", "error": null}`,
	)})

	outcome, err, _ := h.run("list uncommitted files")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuit, outcome)
	assert.Equal(t, "git status --short\nShows changes\nCommand: git status --short\n", h.out.String())
}

func TestRun_RunnerError(t *testing.T) {
	h := newHarness(t, "\n", llm.Script{Chunks: llm.TextChunks(`{"command": "false"}`)})
	h.runner.err = errors.New("exit status 1")

	outcome, err, _ := h.run("fail")
	assert.Equal(t, OutcomeRan, outcome)
	assert.EqualError(t, err, "exit status 1")
}

func TestRun_UnsafeCommandNeverRuns(t *testing.T) {
	h := newHarness(t, "r\n", llm.Script{Chunks: llm.TextChunks(`{"command": "sudo rm  -rf / --no-preserve-root"}`)})

	outcome, err, _ := h.run("clean up")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefused, outcome)
	assert.Empty(t, h.runner.commands)
	assert.NotContains(t, h.session.trace, StateRunning)
	assert.NotContains(t, h.session.trace, StatePresenting)
	assert.Contains(t, h.out.String(), "Refusing to continue")
	assert.Empty(t, h.prompts.String())
}

func TestRun_Placeholders(t *testing.T) {
	h := newHarness(t, "a.txt\nr\n", llm.Script{Chunks: llm.TextChunks(
		`{"command": "find . -name <fi`,
		`lename> -newer <filename>"}`,
	)})

	outcome, err, _ := h.run("find files newer than a file")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, outcome)
	assert.Equal(t, []string{"find . -name a.txt -newer a.txt"}, h.runner.commands)

	assert.Equal(t, 1, strings.Count(h.prompts.String(), "Enter the value for <filename>: "))
	assert.Equal(t, "find . -name <filename>\n"+
		"find . -name a.txt -newer a.txt\n"+
		"Command: find . -name a.txt -newer a.txt\n", h.out.String())
	assert.Equal(t, []State{StateGenerating, StateAwaitingPlaceholder, StateGenerating, StatePresenting, StateRunning}, h.session.trace)
}

func TestRun_UnsafePlaceholderValue(t *testing.T) {
	h := newHarness(t, "/\nr\n", llm.Script{Chunks: llm.TextChunks(`{"command": "ls -la <dir>"}`)})

	outcome, err, _ := h.run("list a directory")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefused, outcome)
	assert.Empty(t, h.runner.commands)
	assert.NotContains(t, h.prompts.String(), menuCommand)
}

func TestRun_PlaceholderInputEnds(t *testing.T) {
	h := newHarness(t, "", llm.Script{Chunks: llm.TextChunks(`{"command": "cat <file>"}`)})

	_, err, _ := h.run("show a file")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, h.runner.commands)
}

func TestRun_SlowPlaceholderAnswerKeepsAttempt(t *testing.T) {
	policy := completion.DefaultPolicy()
	policy.IdleTimeout = 50 * time.Millisecond
	h := newHarnessWithPolicy(t, policy, "",
		llm.Script{Chunks: llm.TextChunks(`{"command": "cat <file>`, ` | wc -l"}`)},
		llm.Script{Chunks: llm.TextChunks(`{"command": "head <file>"}`)},
	)
	h.session.opts.Prompter = promptFunc(func(_ context.Context, message string) (string, error) {
		if strings.HasPrefix(message, "Enter the value") {
			time.Sleep(200 * time.Millisecond)
			return "a.txt", nil
		}
		return "r", nil
	})

	outcome, err, _ := h.run("count lines")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, outcome)
	assert.Equal(t, []string{"cat a.txt | wc -l"}, h.runner.commands)
	assert.Equal(t, 1, h.transport.Calls())
	assert.NotContains(t, h.out.String(), "retrying")
}

func TestRun_PlaceholderInterrupted(t *testing.T) {
	h := newHarness(t, "", llm.Script{Chunks: llm.TextChunks(`{"command": "cat <file>"}`)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.session.opts.Prompter = promptFunc(func(context.Context, string) (string, error) {
		cancel()
		return "", ui.ErrInterrupted
	})

	_, err := h.session.Run(ctx, NewConversation(""), "show a file")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, h.runner.commands)
	assert.Equal(t, 1, h.transport.Calls())
	assert.Contains(t, h.session.trace, StateAwaitingPlaceholder)
	assert.NotContains(t, h.session.trace, StatePresenting)
}

func TestRun_ContentStreamsBeforeMenu(t *testing.T) {
	h := newHarness(t, "", llm.Script{Chunks: llm.TextChunks(
		`{"command": null, "content": "Hel`,
		`lo `,
		`there"}`,
	)})
	w := &writeRecorder{}
	h.session.opts.Printer = ui.NewPrinter(w, false)
	var atMenu []string
	h.session.opts.Prompter = promptFunc(func(_ context.Context, message string) (string, error) {
		atMenu = append([]string(nil), w.writes...)
		assert.Equal(t, menuContent, message)
		return "q", nil
	})

	outcome, err, _ := h.run("hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuit, outcome)
	assert.Equal(t, []string{"Hel", "lo ", "there", "\n"}, atMenu)
	assert.Equal(t, atMenu, w.writes)

	reqs := h.transport.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSON)
}

func TestRun_Explain(t *testing.T) {
	h := newHarness(t, "e\nq\n",
		llm.Script{Chunks: llm.TextChunks(`{"command": "ls -a", "content": null}`)},
		llm.Script{Chunks: llm.TextChunks(`{"command": "ls -a", "content": "Lists all `, `files."}`)},
	)

	outcome, err, conv := h.run("list hidden files")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuit, outcome)
	assert.Empty(t, h.runner.commands)

	assert.Contains(t, h.out.String(), "Lists all files.\n")
	assert.Equal(t, 2, strings.Count(h.out.String(), "Command: ls -a\n"))

	reqs := h.transport.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, prompt.Explain("ls -a"), last.Content)
	assert.Equal(t, 5, conv.Len())
	assert.Contains(t, h.session.trace, StateExplaining)
}

func TestRun_Copy(t *testing.T) {
	h := newHarness(t, "c\nquit\n", llm.Script{Chunks: llm.TextChunks(`{"command": "pwd"}`)})

	outcome, err, _ := h.run("where am I")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuit, outcome)
	assert.Equal(t, []string{"pwd"}, h.copied)
	assert.Contains(t, h.out.String(), "✓ Copied to clipboard")
}

func TestRun_ContentOnly(t *testing.T) {
	h := newHarness(t, "q\n", llm.Script{Chunks: llm.TextChunks(`{"command": null, "content": "Hello there", "error": null}`)})

	outcome, err, _ := h.run("hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuit, outcome)
	assert.Equal(t, "Hello there\n", h.out.String())
	assert.Contains(t, h.prompts.String(), menuContent)
	assert.NotContains(t, h.prompts.String(), menuCommand)
}

func TestRun_ContinueChatting(t *testing.T) {
	h := newHarness(t, "list files instead\nr\n",
		llm.Script{Chunks: llm.TextChunks(`{"command": "pwd"}`)},
		llm.Script{Chunks: llm.TextChunks(`{"command": "ls"}`)},
	)

	outcome, err, conv := h.run("where am I")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, outcome)
	assert.Equal(t, []string{"ls"}, h.runner.commands)

	msgs := conv.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "list files instead", msgs[3].Content)

	// The follow-up request carries the whole history.
	reqs := h.transport.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 4)
}

func TestRun_ModelRefusal(t *testing.T) {
	h := newHarness(t, "", llm.Script{Chunks: llm.TextChunks(`{"command": null, "content": null, "error": "I can't help with that"}`)})

	outcome, err, _ := h.run("something bad")
	assert.ErrorIs(t, err, ErrModelRefused)
	assert.Equal(t, OutcomeQuit, outcome)
	assert.Contains(t, h.out.String(), "✗ I can't help with that")
}

func TestRun_EndOfInputQuits(t *testing.T) {
	h := newHarness(t, "", llm.Script{Chunks: llm.TextChunks(`{"command": "ls"}`)})

	outcome, err, _ := h.run("list")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQuit, outcome)
	assert.Empty(t, h.runner.commands)
}

func TestRun_RestartAfterPartialOutput(t *testing.T) {
	h := newHarness(t, "r\n",
		llm.Script{
			Chunks:  []llm.Chunk{{Content: `{"command": "git st`}},
			RecvErr: &llm.Error{Kind: llm.KindConnection, Err: errors.New("connection reset")},
		},
		llm.Script{Chunks: llm.TextChunks(`{"command": "git status"}`)},
	)

	outcome, err, conv := h.run("status")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRan, outcome)
	assert.Equal(t, []string{"git status"}, h.runner.commands)
	assert.Contains(t, h.out.String(), "git st\n⚠ Connection interrupted, retrying...\ngit status\n")

	// Only the completed attempt is recorded.
	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, `{"command": "git status"}`, last.Content)
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(t, "", llm.Script{Chunks: llm.TextChunks(`{"command": "ls"}`)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.session.Run(ctx, NewConversation(""), "list")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, h.transport.Calls())
}

func TestRun_InterruptedAtMenu(t *testing.T) {
	h := newHarness(t, "", llm.Script{Chunks: llm.TextChunks(`{"command": "ls"}`)})
	h.session.opts.Prompter = promptFunc(func(context.Context, string) (string, error) {
		return "", ui.ErrInterrupted
	})

	_, err, _ := h.run("list")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, h.runner.commands)
}

func TestRun_ServiceUnavailable(t *testing.T) {
	fail := llm.Script{OpenErr: &llm.Error{Kind: llm.KindServer, Status: 503, Err: errors.New("overloaded")}}
	h := newHarness(t, "", fail, fail, fail, fail)

	_, err, _ := h.run("list")
	assert.ErrorIs(t, err, completion.ErrServiceUnavailable)
	assert.Equal(t, 4, h.transport.Calls())
}

func TestChat(t *testing.T) {
	h := newHarness(t, "and more?\nq\n",
		llm.Script{Chunks: llm.TextChunks("Hi", " there")},
		llm.Script{Chunks: llm.TextChunks("Bye")},
	)

	conv := NewConversation("")
	err := h.session.Chat(context.Background(), conv, "hello")
	require.NoError(t, err)

	assert.Equal(t, "Hi there\nBye\n", h.out.String())
	assert.Equal(t, 2, strings.Count(h.prompts.String(), menuChat))

	reqs := h.transport.Requests()
	require.Len(t, reqs, 2)
	assert.False(t, reqs[0].JSON)
	assert.Equal(t, llm.RoleSystem, reqs[0].Messages[0].Role)
	assert.Contains(t, reqs[0].Messages[0].Content, prompt.ChatPolicy)

	msgs := conv.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Hi there"}, msgs[2])
	assert.Equal(t, StateQuitting, h.session.State())
}

func TestConversation(t *testing.T) {
	c := NewConversation("system")
	assert.NotEmpty(t, c.ID)
	assert.NotEqual(t, c.ID, NewConversation("").ID)

	c.Add(llm.RoleUser, "hi")
	msgs := c.Messages()
	msgs[0].Content = "changed"

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "system", c.Messages()[0].Content)
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "hi", last.Content)

	_, ok = NewConversation("").Last()
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting-placeholder", StateAwaitingPlaceholder.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "refused", OutcomeRefused.String())
}
