package deepseek

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Stream *bool `json:"stream"`
}

func newServer(t *testing.T, status int, body string, captured *capturedRequest, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if captured != nil {
			require.NoError(t, json.Unmarshal(raw, captured))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newModel(t *testing.T, baseURL string) *ChatModel {
	t.Helper()
	m, err := NewChatModel(Config{BaseURL: baseURL, APIKey: "secret"})
	require.NoError(t, err)
	return m
}

func TestGenerateReturnsFirstChoice(t *testing.T) {
	var captured capturedRequest
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Hola"},"finish_reason":"stop"}]}`, &captured, &calls)

	msg, err := newModel(t, srv.URL).Generate(context.Background(), []*schema.Message{schema.UserMessage("Hello")})
	require.NoError(t, err)
	require.Equal(t, "Hola", msg.Content)
	require.Equal(t, schema.Assistant, msg.Role)

	require.Equal(t, DefaultModel, captured.Model)
	require.Len(t, captured.Messages, 1)
	require.Equal(t, "user", captured.Messages[0].Role)
	require.Equal(t, "Hello", captured.Messages[0].Content)
	require.NotNil(t, captured.Stream)
	require.False(t, *captured.Stream)
	require.EqualValues(t, 1, calls.Load())
}

func TestGenerateModelOverride(t *testing.T) {
	var captured capturedRequest
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`, &captured, &calls)

	_, err := newModel(t, srv.URL).Generate(context.Background(),
		[]*schema.Message{schema.UserMessage("hi")}, model.WithModel("deepseek-reasoner"))
	require.NoError(t, err)
	require.Equal(t, "deepseek-reasoner", captured.Model)
}

func TestGenerateServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, nil, &calls)

	_, err := newModel(t, srv.URL).Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestGenerateMissingChoices(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, `{"choices":[]}`, nil, &calls)

	_, err := newModel(t, srv.URL).Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestGenerateMissingContent(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{}}]}`, nil, &calls)

	_, err := newModel(t, srv.URL).Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestStreamYieldsSingleChunk(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{"content":"Hola"}}]}`, nil, &calls)

	stream, err := newModel(t, srv.URL).Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, "Hola", chunk.Content)

	_, err = stream.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestNewChatModelRequiresKey(t *testing.T) {
	_, err := NewChatModel(Config{})
	require.Error(t, err)
}
