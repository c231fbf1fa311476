// Package completion runs chat completions against an llm.Transport with
// retries, and turns streamed JSON responses into text deltas.
package completion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iishyfishyy/calais/internal/llm"
)

// Request is one logical completion. It may take several attempts.
type Request struct {
	Messages    []llm.Message
	Field       string   // JSON field to stream; empty streams raw text
	Also        []string // further JSON fields streamed alongside Field
	Model       string
	MaxTokens   int
	Temperature float32
}

func (r Request) transport() llm.Request {
	return llm.Request{
		Model:       r.Model,
		Messages:    r.Messages,
		JSON:        r.Field != "",
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	}
}

// Client issues completions with retry.
type Client struct {
	t      llm.Transport
	policy RetryPolicy
	sleep  Sleeper
	log    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// New returns a Client. A nil logger disables logging.
func New(t llm.Transport, p RetryPolicy, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		t:      t,
		policy: p.withDefaults(),
		sleep:  sleep,
		log:    log.Named("completion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the effective retry policy.
func (c *Client) Policy() RetryPolicy { return c.policy }

// Complete runs a non-streaming completion and returns the response text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	r := &retrier{c: c}
	for {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		r.attempts++
		c.log.Debug("completion attempt", zap.Int("attempt", r.attempts))

		out, err := c.completeOnce(ctx, req)
		if err == nil {
			return out, nil
		}
		if err := r.retry(ctx, err); err != nil {
			return "", err
		}
	}
}

func (c *Client) completeOnce(ctx context.Context, req Request) (string, error) {
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := armIdle(cancel, c.policy.IdleTimeout)
	defer idle.Stop()

	resp, err := c.t.Complete(actx, req.transport())
	if err != nil {
		return "", idleCause(actx, err, c.policy.IdleTimeout)
	}
	if err := finishError(resp.FinishReason); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Stream returns a lazy stream; nothing is sent until the first Next.
func (c *Client) Stream(ctx context.Context, req Request) *Stream {
	return &Stream{
		c:   c,
		ctx: ctx,
		req: req,
		r:   &retrier{c: c},
		log: c.log.With(zap.String("field", req.Field)),
	}
}

// retrier tracks attempts for one Complete or Stream call.
type retrier struct {
	c        *Client
	attempts int
}

// retry decides what happens after a failed attempt. It returns nil once the
// backoff has elapsed and another attempt may start, or the final error.
func (r *retrier) retry(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if !r.c.policy.retryable(err) {
		r.c.log.Debug("attempt failed permanently", zap.Int("attempt", r.attempts), zap.Error(err))
		return &TerminalError{Kind: llm.KindOf(err), Err: err}
	}
	if r.attempts >= r.c.policy.MaxAttempts {
		r.c.log.Debug("attempts exhausted", zap.Int("attempts", r.attempts), zap.Error(err))
		return &UnavailableError{Attempts: r.attempts, Err: err}
	}

	delay := r.c.policy.Backoff(r.attempts - 1)
	r.c.log.Debug("retrying",
		zap.Int("attempt", r.attempts),
		zap.Duration("delay", delay),
		zap.Error(err))
	if err := r.c.sleep(ctx, delay); err != nil {
		return ErrCancelled
	}
	return nil
}

// finishError maps a finish reason to an error; normal endings yield nil.
func finishError(reason string) error {
	switch reason {
	case "", "stop", "null":
		return nil
	case "length":
		return &llm.Error{Kind: llm.KindMaxTokens, Err: ErrMaxTokens}
	case "content_filter":
		return &llm.Error{Kind: llm.KindRefused, Err: ErrContentFiltered}
	default:
		return &llm.Error{Kind: llm.KindUnknown, Err: fmt.Errorf("unexpected finish reason %q", reason)}
	}
}
