package openai

// ModelsResponse represents the response from the /models endpoint.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Model represents a single model in the OpenAI API format.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// IDs returns the model identifiers in listing order.
func (r ModelsResponse) IDs() []string {
	ids := make([]string, 0, len(r.Data))
	for _, m := range r.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
