// Package chat turns relay token streams into summaries and answers from an
// OpenAI-compatible provider.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/openai"
	"github.com/tokligence/tokligence-relay/internal/requester"
)

// Assistant issues chat requests through a requester client.
type Assistant struct {
	client   *requester.Client
	provider Provider
	apiKey   string
	logger   *zap.Logger
}

// NewAssistant binds a client to one resolved provider and key.
func NewAssistant(client *requester.Client, provider Provider, apiKey string, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{client: client, provider: provider, apiKey: apiKey, logger: logger.Named("chat")}
}

// Provider returns the provider requests are sent to.
func (a *Assistant) Provider() Provider { return a.provider }

// Summarize streams a summary of transcript.
func (a *Assistant) Summarize(ctx context.Context, transcript string) (*requester.TokenStream, error) {
	return a.stream(ctx, SummaryMessages(transcript))
}

// Ask streams an answer to question given the summary and prior turns.
func (a *Assistant) Ask(ctx context.Context, question, summary string, history []openai.ChatMessage) (*requester.TokenStream, error) {
	return a.stream(ctx, QuestionMessages(question, summary, history))
}

// Complete runs a non-streaming completion and returns the answer text.
func (a *Assistant) Complete(ctx context.Context, messages []openai.ChatMessage) (string, error) {
	req, err := BuildCompletionRequest(a.provider, a.apiKey, messages, false)
	if err != nil {
		return "", err
	}
	data, err := a.client.Fetch(ctx, req)
	if err != nil {
		return "", err
	}
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	return resp.Content(), nil
}

// ListModels asks the provider for its model identifiers.
func (a *Assistant) ListModels(ctx context.Context) ([]string, error) {
	if !a.provider.SupportsModelList {
		return []string{a.provider.Model}, nil
	}
	req, err := BuildModelsRequest(a.provider, a.apiKey)
	if err != nil {
		return nil, err
	}
	data, err := a.client.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	var resp openai.ModelsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return resp.IDs(), nil
}

func (a *Assistant) stream(ctx context.Context, messages []openai.ChatMessage) (*requester.TokenStream, error) {
	req, err := BuildCompletionRequest(a.provider, a.apiKey, messages, true)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("starting completion stream",
		zap.String("provider", a.provider.Name),
		zap.String("model", a.provider.Model),
		zap.Int("messages", len(messages)))
	return a.client.Stream(ctx, req)
}
