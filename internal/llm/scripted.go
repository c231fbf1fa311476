package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Script is the canned outcome of one call to a Scripted transport.
type Script struct {
	Chunks  []Chunk
	OpenErr error // returned by Open or Complete instead of a stream
	RecvErr error // returned after Chunks instead of io.EOF
	Hang    bool  // block after Chunks until the call context ends
}

// Scripted is a deterministic in-memory Transport. Each call consumes the
// next Script in order. It is primarily intended for tests.
type Scripted struct {
	mu       sync.Mutex
	scripts  []Script
	requests []Request
}

// NewScripted returns a transport that replays scripts in order.
func NewScripted(scripts ...Script) *Scripted {
	return &Scripted{scripts: scripts}
}

// TextChunks builds a script body from content pieces followed by a stop.
func TextChunks(parts ...string) []Chunk {
	out := make([]Chunk, 0, len(parts)+1)
	for _, p := range parts {
		out = append(out, Chunk{Content: p})
	}
	return append(out, Chunk{FinishReason: "stop"})
}

// Requests returns every request received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls returns how many times the transport was used.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Scripted) next(req Request) (Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.scripts) == 0 {
		return Script{}, &Error{Kind: KindUnknown, Err: errors.New("no scripted response left")}
	}
	sc := s.scripts[0]
	s.scripts = s.scripts[1:]
	return sc, nil
}

// Open implements Transport.
func (s *Scripted) Open(ctx context.Context, req Request) (ChunkStream, error) {
	sc, err := s.next(req)
	if err != nil {
		return nil, err
	}
	if sc.OpenErr != nil {
		return nil, sc.OpenErr
	}
	return &scriptedStream{ctx: ctx, sc: sc}, nil
}

// Complete implements Transport by joining the script's chunks.
func (s *Scripted) Complete(ctx context.Context, req Request) (Completion, error) {
	sc, err := s.next(req)
	if err != nil {
		return Completion{}, err
	}
	if sc.OpenErr != nil {
		return Completion{}, sc.OpenErr
	}
	if sc.Hang {
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}
	if sc.RecvErr != nil {
		return Completion{}, sc.RecvErr
	}
	var b strings.Builder
	var out Completion
	for _, c := range sc.Chunks {
		b.WriteString(c.Content)
		if c.FinishReason != "" {
			out.FinishReason = c.FinishReason
		}
	}
	out.Content = b.String()
	return out, nil
}

type scriptedStream struct {
	ctx    context.Context
	sc     Script
	pos    int
	closed bool
}

func (s *scriptedStream) Recv() (Chunk, error) {
	if s.closed {
		return Chunk{}, errors.New("stream closed")
	}
	if err := s.ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.pos < len(s.sc.Chunks) {
		c := s.sc.Chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.sc.Hang {
		<-s.ctx.Done()
		return Chunk{}, s.ctx.Err()
	}
	if s.sc.RecvErr != nil {
		return Chunk{}, s.sc.RecvErr
	}
	return Chunk{}, io.EOF
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}
