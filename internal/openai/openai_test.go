package openai

import (
	"encoding/json"
	"testing"
)

func TestChatCompletionRequestAlwaysCarriesStream(t *testing.T) {
	raw, err := json.Marshal(ChatCompletionRequest{Model: "m", Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded["stream"]; !ok || v != false {
		t.Fatalf("expected explicit stream=false, got %v", decoded)
	}
	if _, ok := decoded["temperature"]; ok {
		t.Fatalf("temperature should be omitted when unset")
	}
}

func TestDeltaChunkShape(t *testing.T) {
	raw, err := json.Marshal(NewDeltaChunk("c1", "m", "Hi"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var chunk ChatCompletionChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if chunk.Delta().Content != "Hi" || chunk.Object != "chat.completion.chunk" {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
	if (ChatCompletionChunk{}).Delta().Content != "" {
		t.Fatalf("empty chunk should have empty delta")
	}
}

func TestResponseHelpers(t *testing.T) {
	resp := ChatCompletionResponse{Choices: []ChatCompletionChoice{{Message: ChatMessage{Role: RoleAssistant, Content: "done"}}}}
	if resp.Content() != "done" {
		t.Fatalf("unexpected content %q", resp.Content())
	}
	if (ChatCompletionResponse{}).Content() != "" {
		t.Fatalf("expected empty content")
	}

	var models ModelsResponse
	if err := json.Unmarshal([]byte(`{"object":"list","data":[{"id":"a"},{"id":""},{"id":"b"}]}`), &models); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ids := models.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
