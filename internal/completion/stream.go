package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iishyfishyy/calais/internal/jsonfield"
	"github.com/iishyfishyy/calais/internal/llm"
)

// EventKind identifies what a stream event carries.
type EventKind int

const (
	// EventDelta carries newly decoded text.
	EventDelta EventKind = iota
	// EventRestart means the previous attempt failed after text was
	// delivered; text received so far must be discarded.
	EventRestart
)

func (k EventKind) String() string {
	if k == EventRestart {
		return "restart"
	}
	return "delta"
}

// Event is one item yielded by a Stream.
type Event struct {
	Kind  EventKind
	Field string // JSON field the text belongs to; empty for raw text
	Text  string
}

// Stream pulls a streamed completion one event at a time. The idle timer
// only runs while Next waits on the transport. It is not safe for
// concurrent use.
type Stream struct {
	c   *Client
	ctx context.Context
	req Request
	r   *retrier
	log *zap.Logger

	// current attempt
	cs      llm.ChunkStream
	cancel  context.CancelCauseFunc
	actx    context.Context
	idle    *time.Timer
	buf     strings.Builder
	fields  []*jsonfield.Extractor
	text    strings.Builder
	blank   int
	queue   []Event
	emitted bool

	restart bool
	err     error
}

// Next returns the next event. It returns io.EOF when the response is
// complete; any other error ends the stream and is returned again by later
// calls.
func (s *Stream) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	for {
		if s.restart {
			s.restart = false
			return Event{Kind: EventRestart}, nil
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.cs == nil {
			if err := s.open(); err != nil {
				return s.fail(err)
			}
		}

		s.idle.Reset(s.c.policy.IdleTimeout)
		events, err := s.recv()
		s.idle.Stop()
		if err == io.EOF {
			s.log.Debug("stream complete", zap.Int("attempt", s.r.attempts), zap.Int("bytes", s.buf.Len()))
			s.closeAttempt()
			s.err = io.EOF
			return Event{}, io.EOF
		}
		if err != nil {
			s.closeAttempt()
			if rerr := s.r.retry(s.ctx, err); rerr != nil {
				return s.fail(rerr)
			}
			if s.emitted {
				s.restart = true
			}
			continue
		}
		if len(events) > 0 {
			s.emitted = true
			s.queue = append(s.queue, events...)
		}
	}
}

// Raw returns everything received in the current attempt.
func (s *Stream) Raw() string { return s.buf.String() }

// Text returns the text of the main field emitted in the current attempt.
func (s *Stream) Text() string { return s.text.String() }

// Attempts returns how many attempts were started.
func (s *Stream) Attempts() int { return s.r.attempts }

// Close releases the underlying transport stream and timer.
func (s *Stream) Close() error {
	s.closeAttempt()
	if s.err == nil {
		s.err = ErrClosed
	}
	return nil
}

func (s *Stream) fail(err error) (Event, error) {
	s.closeAttempt()
	s.err = err
	return Event{}, err
}

// open starts attempts until one yields a transport stream.
func (s *Stream) open() error {
	for {
		if s.ctx.Err() != nil {
			return ErrCancelled
		}
		s.r.attempts++
		s.log.Debug("opening stream", zap.Int("attempt", s.r.attempts))

		actx, cancel := context.WithCancelCause(s.ctx)
		idle := armIdle(cancel, s.c.policy.IdleTimeout)
		cs, err := s.c.t.Open(actx, s.req.transport())
		if err == nil {
			idle.Stop()
			s.cs, s.actx, s.cancel, s.idle = cs, actx, cancel, idle
			s.buf.Reset()
			s.text.Reset()
			s.blank = 0
			s.queue = nil
			s.emitted = false
			s.fields = nil
			if s.req.Field != "" {
				s.fields = append(s.fields, jsonfield.New(s.req.Field))
				for _, f := range s.req.Also {
					s.fields = append(s.fields, jsonfield.New(f))
				}
			}
			return nil
		}

		idle.Stop()
		err = idleCause(actx, err, s.c.policy.IdleTimeout)
		cancel(nil)
		if rerr := s.r.retry(s.ctx, err); rerr != nil {
			return rerr
		}
	}
}

// recv reads one chunk and returns the events it made final, main field
// first.
func (s *Stream) recv() ([]Event, error) {
	chunk, err := s.cs.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, idleCause(s.actx, err, s.c.policy.IdleTimeout)
	}

	if err := finishError(chunk.FinishReason); err != nil {
		return nil, err
	}

	if strings.TrimSpace(chunk.Content) == "" && chunk.FinishReason == "" {
		s.blank++
		if s.blank > s.c.policy.MaxEmptyChunks {
			return nil, &llm.Error{Kind: llm.KindStalled, Err: errStalled}
		}
	} else {
		s.blank = 0
	}
	if chunk.Content == "" {
		return nil, nil
	}

	s.buf.WriteString(chunk.Content)
	if s.fields == nil {
		s.text.WriteString(chunk.Content)
		return []Event{{Kind: EventDelta, Text: chunk.Content}}, nil
	}

	var events []Event
	for i, ex := range s.fields {
		if ex == nil {
			continue
		}
		delta, err := ex.Feed(s.buf.String())
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
			// The final decode reports malformed secondary fields.
			s.log.Debug("stopped streaming field", zap.String("field", ex.Field()), zap.Error(err))
			s.fields[i] = nil
			continue
		}
		if delta == "" {
			continue
		}
		if i == 0 {
			s.text.WriteString(delta)
		}
		events = append(events, Event{Kind: EventDelta, Field: ex.Field(), Text: delta})
	}
	return events, nil
}

func (s *Stream) closeAttempt() {
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	if s.cs != nil {
		s.cs.Close()
		s.cs = nil
	}
	if s.cancel != nil {
		s.cancel(nil)
		s.cancel = nil
	}
}

// armIdle cancels the attempt with errIdle unless the timer is reset within d.
func armIdle(cancel context.CancelCauseFunc, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() { cancel(errIdle) })
}

// idleCause reports an attempt cancelled by its idle timer as a timeout.
func idleCause(ctx context.Context, err error, d time.Duration) error {
	if errors.Is(context.Cause(ctx), errIdle) {
		return &llm.Error{Kind: llm.KindTimeout, Err: fmt.Errorf("%w (%s): %v", errIdle, d, err)}
	}
	return err
}
