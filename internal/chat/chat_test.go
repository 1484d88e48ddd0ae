package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/tokligence-relay/internal/executor"
	"github.com/tokligence/tokligence-relay/internal/openai"
	"github.com/tokligence/tokligence-relay/internal/relay"
	"github.com/tokligence/tokligence-relay/internal/requester"
	"github.com/tokligence/tokligence-relay/internal/testutil"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newAssistant(t *testing.T, handler http.Handler, local bool, key string) *Assistant {
	srv := testutil.NewIPv4Server(t, handler)
	exec := executor.New(executor.Config{HTTPClient: srv.Client()})
	p := Provider{Name: "test", BaseURL: srv.URL + "/v1/", Model: "m", IsLocal: local, SupportsModelList: true}
	return NewAssistant(requester.New(exec, requester.Options{}), p, key, nil)
}

func TestCatalogBuiltins(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Len(t, c.Providers(), 7)

	p, ok := c.Lookup("groq")
	require.True(t, ok)
	assert.Equal(t, "https://api.groq.com/openai/v1", p.BaseURL)

	_, err = c.Resolve(OtherCompatible, "", "")
	assert.Error(t, err)
	p, err = c.Resolve(OtherCompatible, "http://localhost:8000/v1/", "qwen")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/v1", p.BaseURL)
	assert.Equal(t, "qwen", p.Model)

	_, err = c.Resolve("nope", "", "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCatalogYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`providers:
  - name: ollama
    base_url: http://gpu-box:11434/v1
    model: llama3
    is_local: true
  - name: Internal
    base_url: https://llm.internal/v1
    model: house-model
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, c.Providers(), 8)
	p, ok := c.Lookup("Ollama")
	require.True(t, ok)
	assert.Equal(t, "llama3", p.Model)
	p, ok = c.Lookup("internal")
	require.True(t, ok)
	assert.False(t, p.IsLocal)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("providers:\n  - model: x\n"), 0o644))
	_, err = LoadCatalog(bad)
	assert.Error(t, err)
}

func TestBuildCompletionRequest(t *testing.T) {
	p := Provider{Name: "ChatGPT", BaseURL: "https://api.openai.com/v1", Model: "gpt-4"}
	_, err := BuildCompletionRequest(p, "", nil, true)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	req, err := BuildCompletionRequest(p, "sk-1", SummaryMessages("hello"), true)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", req.TargetURL)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "Bearer sk-1", req.Headers["Authorization"])
	assert.Equal(t, relay.ModeStream, relay.Negotiate(req))

	req, err = BuildCompletionRequest(p, "sk-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, relay.ModeUnary, relay.Negotiate(req))

	local := Provider{Name: "Ollama", BaseURL: "http://127.0.0.1:11434/v1", Model: "llama2", IsLocal: true}
	req, err = BuildCompletionRequest(local, "", nil, true)
	require.NoError(t, err)
	_, hasAuth := req.Headers["Authorization"]
	assert.False(t, hasAuth)
}

func TestQuestionMessagesOrder(t *testing.T) {
	history := []openai.ChatMessage{
		{Role: openai.RoleUser, Content: "first"},
		{Role: openai.RoleAssistant, Content: "answer"},
	}
	msgs := QuestionMessages("second", "the summary", history)
	require.Len(t, msgs, 4)
	assert.Equal(t, openai.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "the summary")
	assert.Equal(t, "first", msgs[1].Content)
	assert.Equal(t, openai.ChatMessage{Role: openai.RoleUser, Content: "second"}, msgs[3])
	assert.Contains(t, SummaryPrompt("words"), "# TLDR")
}

func TestSummarizeStreamsTokens(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody openai.ChatCompletionRequest
	sse := testutil.SSEHandler(testutil.DeltaFrame("# TLDR"), testutil.DeltaFrame("\nShort."), testutil.DoneFrame)
	a := newAssistant(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		sse.ServeHTTP(w, r)
	}), false, "sk-test")

	ts, err := a.Summarize(testCtx(t), "transcript text")
	require.NoError(t, err)

	var seen []string
	tr := &Transcript{OnToken: func(tok string) { seen = append(seen, tok) }}
	require.NoError(t, tr.Consume(testCtx(t), ts))

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.True(t, gotBody.Stream)
	assert.Equal(t, "m", gotBody.Model)
	assert.Equal(t, []string{"# TLDR", "\nShort."}, seen)
	assert.Equal(t, OutcomeComplete, tr.Outcome())
	assert.Equal(t, "# TLDR\nShort.", tr.Render())
}

func TestAskFailureRendersError(t *testing.T) {
	a := newAssistant(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), false, "sk-bad")

	ts, err := a.Ask(testCtx(t), "why?", "summary", nil)
	require.NoError(t, err)
	tr := &Transcript{}
	err = tr.Consume(testCtx(t), ts)

	var rerr *relay.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, relay.KindStatus, rerr.Kind)
	assert.Equal(t, OutcomeFailed, tr.Outcome())
	assert.Equal(t, "Error: Request failed with status 401", tr.Render())
}

func TestTranscriptTruncatedKeepsText(t *testing.T) {
	tr := &Transcript{}
	tr.Append("partial")
	tr.Fail(errors.New("channel lost"))
	assert.Equal(t, OutcomeTruncated, tr.Outcome())
	assert.Equal(t, 1, tr.Tokens())
	assert.True(t, strings.HasPrefix(tr.Render(), "partial"))
	assert.Contains(t, tr.Render(), "[response interrupted: channel lost]")
	assert.Equal(t, "truncated", tr.Outcome().String())
}

func TestCompleteAndListModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: openai.RoleAssistant, Content: "pong"}}},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ModelsResponse{Object: "list", Data: []openai.Model{{ID: "m1"}, {ID: "m2"}}})
	})
	a := newAssistant(t, mux, true, "")

	answer, err := a.Complete(testCtx(t), []openai.ChatMessage{{Role: openai.RoleUser, Content: "ping"}})
	require.NoError(t, err)
	assert.Equal(t, "pong", answer)

	models, err := a.ListModels(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, models)
}

func TestMissingKeyFailsBeforeRelay(t *testing.T) {
	a := NewAssistant(requester.New(nil, requester.Options{}), Provider{Name: "ChatGPT", BaseURL: "https://x/v1", Model: "gpt-4"}, "", nil)
	_, err := a.Summarize(testCtx(t), "t")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
