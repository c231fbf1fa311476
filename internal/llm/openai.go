package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Transport using the OpenAI-compatible chat completions API.
type OpenAI struct {
	c *openai.Client
}

// NewOpenAI returns a Transport for an OpenAI-compatible endpoint.
// baseURL may be left empty for the default OpenAI URL.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL // works for LocalAI, vLLM, Groq, etc.
	}
	return &OpenAI{c: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAI) request(req Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

// Open starts a streaming completion.
func (o *OpenAI) Open(ctx context.Context, req Request) (ChunkStream, error) {
	s, err := o.c.CreateChatCompletionStream(ctx, o.request(req, true))
	if err != nil {
		return nil, Classify(err)
	}
	return &openAIStream{s: s}, nil
}

// Complete runs a non-streaming completion.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Completion, error) {
	resp, err := o.c.CreateChatCompletion(ctx, o.request(req, false))
	if err != nil {
		return Completion{}, Classify(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, nil
	}
	choice := resp.Choices[0]
	return Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

type openAIStream struct {
	s *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (Chunk, error) {
	resp, err := s.s.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, Classify(err)
	}
	if len(resp.Choices) == 0 {
		return Chunk{}, nil
	}
	choice := resp.Choices[0]
	return Chunk{
		Content:      choice.Delta.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

func (s *openAIStream) Close() error {
	return s.s.Close()
}
