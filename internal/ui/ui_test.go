package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("first\r\nsecond\nlast"), &out)
	ctx := context.Background()

	for _, want := range []string{"first", "second", "last"} {
		got, err := p.Ask(ctx, "> ")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := p.Ask(ctx, "> ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "> > > > ", out.String())
}

func TestLinePrompter_Interrupted(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewLinePrompter(r, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Ask(ctx, "? ")
	assert.ErrorIs(t, err, ErrInterrupted)

	ctx, cancel = context.WithCancel(context.Background())
	go cancel()
	_, err = p.Ask(ctx, "? ")
	assert.ErrorIs(t, err, ErrInterrupted)

	// The read started by the interrupted Ask delivers the next line.
	go w.Write([]byte("late\n"))
	got, err := p.Ask(context.Background(), "? ")
	require.NoError(t, err)
	assert.Equal(t, "late", got)
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, false)

	p.Print("git status")
	p.Print(" --short")
	p.Command("git status --short")
	p.Error("bad %s", "thing")
	p.EnsureNewline()

	assert.Equal(t, "git status --short\nCommand: git status --short\n✗ bad thing\n", out.String())
}
