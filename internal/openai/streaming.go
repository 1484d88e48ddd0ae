package openai

// ChatCompletionChunk is one `data:` frame of a streamed completion.
type ChatCompletionChunk struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Model   string                      `json:"model"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
}

// ChatCompletionChunkChoice represents a choice in a streaming chunk.
type ChatCompletionChunkChoice struct {
	Index        int              `json:"index"`
	Delta        ChatMessageDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

// ChatMessageDelta represents the incremental content in a stream chunk.
type ChatMessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// NewDeltaChunk builds a single-choice chunk carrying content.
func NewDeltaChunk(id, model, content string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:     id,
		Object: "chat.completion.chunk",
		Model:  model,
		Choices: []ChatCompletionChunkChoice{{
			Delta: ChatMessageDelta{Content: content},
		}},
	}
}

// Delta returns the first choice's delta.
func (c ChatCompletionChunk) Delta() ChatMessageDelta {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta
	}
	return ChatMessageDelta{}
}
