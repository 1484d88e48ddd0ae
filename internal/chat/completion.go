package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tokligence/tokligence-relay/internal/openai"
	"github.com/tokligence/tokligence-relay/internal/relay"
)

// ErrMissingAPIKey is returned when a hosted provider has no key configured.
var ErrMissingAPIKey = errors.New("API key not found. Please set your API key in the relay settings")

func authHeaders(p Provider, apiKey string) (map[string]string, error) {
	headers := map[string]string{"Content-Type": "application/json"}
	key := strings.TrimSpace(apiKey)
	if key == "" {
		if !p.IsLocal {
			return nil, ErrMissingAPIKey
		}
		return headers, nil
	}
	headers["Authorization"] = "Bearer " + key
	return headers, nil
}

// BuildCompletionRequest returns the relay request for {baseUrl}/chat/completions.
func BuildCompletionRequest(p Provider, apiKey string, messages []openai.ChatMessage, stream bool) (relay.OutboundRequest, error) {
	headers, err := authHeaders(p, apiKey)
	if err != nil {
		return relay.OutboundRequest{}, err
	}
	body, err := json.Marshal(openai.ChatCompletionRequest{
		Model:    p.Model,
		Messages: messages,
		Stream:   stream,
	})
	if err != nil {
		return relay.OutboundRequest{}, err
	}
	return relay.OutboundRequest{
		TargetURL: strings.TrimRight(p.BaseURL, "/") + "/chat/completions",
		Method:    http.MethodPost,
		Headers:   headers,
		Body:      string(body),
	}, nil
}

// BuildModelsRequest returns the relay request listing {baseUrl}/models.
func BuildModelsRequest(p Provider, apiKey string) (relay.OutboundRequest, error) {
	headers, err := authHeaders(p, apiKey)
	if err != nil {
		return relay.OutboundRequest{}, err
	}
	delete(headers, "Content-Type")
	return relay.OutboundRequest{
		TargetURL: strings.TrimRight(p.BaseURL, "/") + "/models",
		Method:    http.MethodGet,
		Headers:   headers,
	}, nil
}
