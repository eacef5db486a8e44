package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func messagesServer(t *testing.T, text string, captured *messagesRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "msg_01",
			"type":    "message",
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
}

func newTestBackend(url string) *Backend {
	return NewBackend(Config{APIKey: "test-key", BaseURL: url}, zap.NewNop())
}

func TestBackend_Summarize(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    *ai.SummaryResult
		wantErr bool
	}{
		{
			name:  "exact values",
			reply: `Here is the summary: {"summary":"S","keyPoints":["a","b"],"actionItems":["c"]}`,
			want:  &ai.SummaryResult{Summary: "S", KeyPoints: []string{"a", "b"}, ActionItems: []string{"c"}},
		},
		{
			name:  "missing sub-fields",
			reply: `{"summary":"S"}`,
			want:  &ai.SummaryResult{Summary: "S", KeyPoints: []string{}, ActionItems: []string{}},
		},
		{
			name:    "no JSON",
			reply:   "Nothing to summarize.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := messagesServer(t, tt.reply, nil)
			defer server.Close()

			got, err := newTestBackend(server.URL).Summarize(context.Background(), "note")
			if tt.wantErr {
				provErr, ok := providers.AsProviderError(err)
				require.True(t, ok)
				assert.Equal(t, "anthropic", provErr.Provider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackend_Organize(t *testing.T) {
	var captured messagesRequest
	server := messagesServer(t, `{"suggestedFolder":"Travel","suggestedTags":["japan"],"topics":["trip"],"urgency":"high"}`, &captured)
	defer server.Close()

	got, err := newTestBackend(server.URL).Organize(context.Background(), "book flights to Tokyo")
	require.NoError(t, err)
	require.NotNil(t, got.SuggestedFolder)
	assert.Equal(t, "Travel", *got.SuggestedFolder)
	assert.Equal(t, ai.UrgencyHigh, got.Urgency)

	assert.Equal(t, DefaultModel, captured.Model)
	assert.Equal(t, analysisMaxTokens, captured.MaxTokens)
	assert.Empty(t, captured.System)
}

func TestBackend_Chat(t *testing.T) {
	var captured messagesRequest
	server := messagesServer(t, "You wrote about milk.", &captured)
	defer server.Close()

	got, err := newTestBackend(server.URL).Chat(context.Background(),
		[]ai.ChatMessage{{Role: ai.RoleUser, Content: "what did I write?"}}, "buy milk")
	require.NoError(t, err)
	assert.Equal(t, "You wrote about milk.", got)

	assert.Equal(t, chatMaxTokens, captured.MaxTokens)
	assert.Contains(t, captured.System, "buy milk")
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestBackend_Unsupported(t *testing.T) {
	backend := NewBackend(Config{}, zap.NewNop())

	_, err := backend.GenerateEmbedding(context.Background(), "x")
	assert.True(t, providers.IsUnsupported(err))

	_, isTranscriber := interface{}(backend).(ai.Transcriber)
	assert.False(t, isTranscriber)
	assert.False(t, backend.Capabilities().Has(ai.CapEmbeddings))
}

func TestBackend_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	_, err := newTestBackend(server.URL).Summarize(context.Background(), "note")
	provErr, ok := providers.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, 529, provErr.StatusCode)
	assert.Equal(t, "Overloaded", provErr.Message)
}
