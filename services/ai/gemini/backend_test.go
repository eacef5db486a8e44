package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// replyServer answers generateContent with text and records the last request
func replyServer(t *testing.T, text string, captured *generateRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.RawQuery)

		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}

		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"role": "model", "parts": []map[string]string{{"text": text}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestBackend(url string) *Backend {
	return NewBackend(Config{APIKey: "test-key", BaseURL: url}, zap.NewNop())
}

func TestBackend_Summarize(t *testing.T) {
	t.Run("exact values from fenced reply", func(t *testing.T) {
		server := replyServer(t, "```json\n{\"summary\":\"S\",\"keyPoints\":[\"a\",\"b\"],\"actionItems\":[\"c\"]}\n```", nil)
		defer server.Close()

		got, err := newTestBackend(server.URL).Summarize(context.Background(), "note body")
		require.NoError(t, err)
		assert.Equal(t, &ai.SummaryResult{Summary: "S", KeyPoints: []string{"a", "b"}, ActionItems: []string{"c"}}, got)
	})

	t.Run("missing sub-fields become empty", func(t *testing.T) {
		server := replyServer(t, `{"summary":"S"}`, nil)
		defer server.Close()

		got, err := newTestBackend(server.URL).Summarize(context.Background(), "note body")
		require.NoError(t, err)
		assert.Equal(t, []string{}, got.KeyPoints)
		assert.Equal(t, []string{}, got.ActionItems)
	})

	t.Run("no JSON is a gemini provider error", func(t *testing.T) {
		server := replyServer(t, "I'd rather not.", nil)
		defer server.Close()

		_, err := newTestBackend(server.URL).Summarize(context.Background(), "note body")
		provErr, ok := providers.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, "gemini", provErr.Provider)
	})

	t.Run("prompt embeds note and schema", func(t *testing.T) {
		var captured generateRequest
		server := replyServer(t, `{"summary":"S"}`, &captured)
		defer server.Close()

		_, err := newTestBackend(server.URL).Summarize(context.Background(), "remember the milk")
		require.NoError(t, err)
		require.Len(t, captured.Contents, 1)
		prompt := captured.Contents[0].Parts[0].Text
		assert.Contains(t, prompt, "remember the milk")
		assert.Contains(t, prompt, `"keyPoints"`)
	})
}

func TestBackend_Chat(t *testing.T) {
	var captured generateRequest
	server := replyServer(t, "Sure thing.", &captured)
	defer server.Close()

	messages := []ai.ChatMessage{
		{Role: ai.RoleUser, Content: "hi"},
		{Role: ai.RoleAssistant, Content: "hello"},
		{Role: ai.RoleUser, Content: "what did I write?"},
	}
	got, err := newTestBackend(server.URL).Chat(context.Background(), messages, "Note: buy milk")
	require.NoError(t, err)
	assert.Equal(t, "Sure thing.", got)

	require.NotNil(t, captured.SystemInstruction)
	assert.Contains(t, captured.SystemInstruction.Parts[0].Text, "buy milk")
	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "model", captured.Contents[1].Role)
}

func TestBackend_Transcribe(t *testing.T) {
	t.Run("inline audio and JSON reply", func(t *testing.T) {
		var captured generateRequest
		server := replyServer(t, `{"text":"hello","language":"fr","duration":4}`, &captured)
		defer server.Close()

		got, err := newTestBackend(server.URL).Transcribe(context.Background(), []byte("abc"), "audio/mp4")
		require.NoError(t, err)
		assert.Equal(t, &ai.TranscriptionResult{Text: "hello", Duration: 4, Language: "fr"}, got)

		parts := captured.Contents[0].Parts
		require.Len(t, parts, 2)
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, "audio/mp4", parts[1].InlineData.MimeType)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("abc")), parts[1].InlineData.Data)
	})

	t.Run("raw text reply", func(t *testing.T) {
		server := replyServer(t, "plain transcript", nil)
		defer server.Close()

		got, err := newTestBackend(server.URL).Transcribe(context.Background(), []byte("abc"), "")
		require.NoError(t, err)
		assert.Equal(t, &ai.TranscriptionResult{Text: "plain transcript", Language: "en"}, got)
	})
}

func TestBackend_GenerateEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/text-embedding-004:embedContent"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "models/text-embedding-004", req.Model)
		assert.Equal(t, "hello", req.Content.Parts[0].Text)

		_, _ = w.Write([]byte(`{"embedding":{"values":[0.5,0.25]}}`))
	}))
	defer server.Close()

	got, err := newTestBackend(server.URL).GenerateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, ai.Embedding{0.5, 0.25}, got)
}

func TestBackend_Errors(t *testing.T) {
	t.Run("vendor error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
		}))
		defer server.Close()

		_, err := newTestBackend(server.URL).Organize(context.Background(), "note")
		provErr, ok := providers.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, provErr.StatusCode)
		assert.Equal(t, "API key not valid", provErr.Message)
	})

	t.Run("blocked prompt", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
		}))
		defer server.Close()

		_, err := newTestBackend(server.URL).Chat(context.Background(), nil, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SAFETY")
	})

	t.Run("transport failure does not expose the key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		backend := NewBackend(Config{APIKey: "SECRET-GEMINI-KEY", BaseURL: server.URL}, zap.NewNop())

		_, err := backend.Summarize(context.Background(), "x")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "SECRET-GEMINI-KEY")

		_, err = backend.GenerateEmbedding(context.Background(), "x")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "SECRET-GEMINI-KEY")
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewBackend(Config{}, zap.NewNop()).Summarize(context.Background(), "x")
		provErr, ok := providers.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, providers.CodeMissingCredentials, provErr.Code)
	})
}
