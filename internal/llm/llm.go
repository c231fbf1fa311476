// Package llm defines the chat-completion transport used to talk to the model
// and its implementations.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// Request is a single chat-completion call.
type Request struct {
	Model       string
	Messages    []Message
	JSON        bool // ask for a JSON object response
	MaxTokens   int
	Temperature float32
}

// Chunk is one incremental piece of a streamed completion.
type Chunk struct {
	Content      string
	FinishReason string
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Content      string
	FinishReason string
}

// ChunkStream yields chunks until io.EOF.
type ChunkStream interface {
	Recv() (Chunk, error)
	Close() error
}

// Transport opens completions against a remote service. Errors returned by
// implementations should be *Error so callers can decide whether to retry.
type Transport interface {
	Open(ctx context.Context, req Request) (ChunkStream, error)
	Complete(ctx context.Context, req Request) (Completion, error)
}
