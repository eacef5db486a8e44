package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/amebo/notes-backend/middleware"
	"github.com/amebo/notes-backend/services"
	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/embedding"
	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/services/providers"
	"github.com/amebo/notes-backend/services/usage"
	"github.com/amebo/notes-backend/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const longNote = "<p>Quarterly planning: hire two engineers, ship the mobile app, and renegotiate the hosting contract.</p>"

type aiFixture struct {
	ai      *MockAIService
	usage   *MockUsageService
	queue   *MockEmbeddingQueue
	handler *AIHandler
}

func newAIFixture() *aiFixture {
	f := &aiFixture{
		ai:    new(MockAIService),
		usage: new(MockUsageService),
		queue: new(MockEmbeddingQueue),
	}
	f.handler = NewAIHandler(f.ai, f.usage, f.queue, zap.NewNop())
	f.handler.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	return f
}

func TestAIHandler_Summarize(t *testing.T) {
	t.Run("records usage after success", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")

		f.usage.On("CanSummarize", mock.Anything, claims.UserID).Return(true, nil)
		f.ai.On("Summarize", mock.Anything, utils.StripHTML(longNote)).Return(&ai.SummaryResult{
			Summary:     "Planning notes",
			KeyPoints:   []string{"hiring"},
			ActionItems: []string{},
		}, nil)
		f.usage.On("RecordAIUsage", mock.Anything, claims.UserID).Return(nil)

		w := httptest.NewRecorder()
		f.handler.HandleSummarize(w, newRequest(t, http.MethodPost, "/api/v1/ai/summarize", ContentRequest{Content: longNote}, claims))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, "Planning notes", body["summary"])
		f.usage.AssertExpectations(t)
	})

	t.Run("short content is rejected before the usage check", func(t *testing.T) {
		f := newAIFixture()

		w := httptest.NewRecorder()
		f.handler.HandleSummarize(w, newRequest(t, http.MethodPost, "/", ContentRequest{Content: "too short"}, userClaims("")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, float64(minSummarizeChars), body["details"].(map[string]interface{})["minLength"])
		f.usage.AssertNotCalled(t, "CanSummarize", mock.Anything, mock.Anything)
	})

	t.Run("limit reached", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		f.usage.On("CanSummarize", mock.Anything, claims.UserID).Return(false, nil)

		w := httptest.NewRecorder()
		f.handler.HandleSummarize(w, newRequest(t, http.MethodPost, "/", ContentRequest{Content: longNote}, claims))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "upgrade to Pro")
		f.ai.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
	})

	t.Run("provider failure does not record usage", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		f.usage.On("CanSummarize", mock.Anything, claims.UserID).Return(true, nil)
		f.ai.On("Summarize", mock.Anything, mock.Anything).
			Return(nil, providers.NewProviderError("openai", providers.CodeHTTPError, "upstream 500", 500, nil))

		w := httptest.NewRecorder()
		f.handler.HandleSummarize(w, newRequest(t, http.MethodPost, "/", ContentRequest{Content: longNote}, claims))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		f.usage.AssertNotCalled(t, "RecordAIUsage", mock.Anything, mock.Anything)
	})

	t.Run("usage write failure still returns the summary", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		f.usage.On("CanSummarize", mock.Anything, claims.UserID).Return(true, nil)
		f.ai.On("Summarize", mock.Anything, mock.Anything).Return(&ai.SummaryResult{Summary: "ok"}, nil)
		f.usage.On("RecordAIUsage", mock.Anything, claims.UserID).Return(errors.New("db down"))

		w := httptest.NewRecorder()
		f.handler.HandleSummarize(w, newRequest(t, http.MethodPost, "/", ContentRequest{Content: longNote}, claims))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("requires an authenticated user", func(t *testing.T) {
		f := newAIFixture()

		w := httptest.NewRecorder()
		f.handler.HandleSummarize(w, newRequest(t, http.MethodPost, "/", ContentRequest{Content: longNote}, nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAIHandler_Organize(t *testing.T) {
	f := newAIFixture()
	folder := "Work"
	f.ai.On("Organize", mock.Anything, "Budget review for the design team").Return(&ai.OrganizationResult{
		SuggestedFolder: &folder,
		SuggestedTags:   []string{"budget"},
		Topics:          []string{"finance"},
		Urgency:         ai.UrgencyMedium,
	}, nil)

	w := httptest.NewRecorder()
	f.handler.HandleOrganize(w, newRequest(t, http.MethodPost, "/", ContentRequest{Content: "<b>Budget</b> review for the design team"}, userClaims("")))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeMap(t, w)
	assert.Equal(t, "Work", body["suggestedFolder"])
	assert.Equal(t, "medium", body["urgency"])

	w = httptest.NewRecorder()
	f.handler.HandleOrganize(w, newRequest(t, http.MethodPost, "/", ContentRequest{Content: "tiny"}, userClaims("")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAIHandler_Chat(t *testing.T) {
	t.Run("passes stripped notes context", func(t *testing.T) {
		f := newAIFixture()
		messages := []ai.ChatMessage{{Role: ai.RoleUser, Content: "What is due Friday?"}}
		f.ai.On("Chat", mock.Anything, messages, "Report due Friday").Return("The report.", nil)

		w := httptest.NewRecorder()
		f.handler.HandleChat(w, newRequest(t, http.MethodPost, "/", ChatRequest{
			Messages:     messages,
			NotesContext: "<li>Report due Friday</li>",
		}, userClaims("")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "The report.", decodeMap(t, w)["reply"])
	})

	t.Run("rejects empty and malformed message lists", func(t *testing.T) {
		f := newAIFixture()

		for _, body := range []interface{}{
			ChatRequest{},
			ChatRequest{Messages: []ai.ChatMessage{{Role: "system", Content: "x"}}},
			`{"messages": [`,
		} {
			w := httptest.NewRecorder()
			f.handler.HandleChat(w, newRequest(t, http.MethodPost, "/", body, userClaims("")))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		}
		f.ai.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
	})
}

func multipartAudio(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="memo.webm"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAIHandler_Transcribe(t *testing.T) {
	audio := []byte("fake-opus-frames")

	newUpload := func(t *testing.T, claims *middleware.Claims, contentType string) *http.Request {
		body, ct := multipartAudio(t, contentType, audio)
		return newMultipartRequest(t, body, ct, claims)
	}

	t.Run("pro user gets text and a suggested title", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		f.usage.On("CanTranscribe", mock.Anything, claims.UserID).Return(true, nil)
		f.ai.On("Transcribe", mock.Anything, audio, "audio/webm").
			Return(&ai.TranscriptionResult{Text: "hello", Language: "en"}, nil)

		w := httptest.NewRecorder()
		f.handler.HandleTranscribe(w, newUpload(t, claims, "application/octet-stream"))

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, "Transcription 2024-05-01 09:30", body["suggestedTitle"])
		assert.Equal(t, "hello", body["transcription"].(map[string]interface{})["text"])
	})

	t.Run("keeps the uploaded mime type", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		f.usage.On("CanTranscribe", mock.Anything, claims.UserID).Return(true, nil)
		f.ai.On("Transcribe", mock.Anything, audio, "audio/mp4").Return(&ai.TranscriptionResult{Text: "hi"}, nil)

		w := httptest.NewRecorder()
		f.handler.HandleTranscribe(w, newUpload(t, claims, "audio/mp4"))

		assert.Equal(t, http.StatusOK, w.Code)
		f.ai.AssertExpectations(t)
	})

	t.Run("free plan is refused", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		f.usage.On("CanTranscribe", mock.Anything, claims.UserID).Return(false, nil)

		w := httptest.NewRecorder()
		f.handler.HandleTranscribe(w, newUpload(t, claims, "audio/webm"))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "Pro feature")
	})

	t.Run("missing file", func(t *testing.T) {
		f := newAIFixture()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "no audio here"))
		require.NoError(t, mw.Close())

		req := newMultipartRequest(t, &buf, mw.FormDataContentType(), userClaims(""))

		w := httptest.NewRecorder()
		f.handler.HandleTranscribe(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "No file provided")
		f.usage.AssertNotCalled(t, "CanTranscribe", mock.Anything, mock.Anything)
	})

	t.Run("oversized upload", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		f.usage.On("CanTranscribe", mock.Anything, claims.UserID).Return(true, nil)

		body, ct := multipartAudio(t, "audio/webm", bytes.Repeat([]byte{1}, MaxAudioBytes+10))
		req := newMultipartRequest(t, body, ct, claims)

		w := httptest.NewRecorder()
		f.handler.HandleTranscribe(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "file too large")
		f.ai.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAIHandler_Embed(t *testing.T) {
	noteID := uuid.New()

	t.Run("queues title and stripped content", func(t *testing.T) {
		f := newAIFixture()
		claims := userClaims("")
		jobID := uuid.New()

		f.queue.On("Submit", embedding.Job{
			NoteID: noteID,
			UserID: claims.UserID,
			Text:   "Roadmap\n\nShip search in the second quarter",
		}).Return(jobID, nil)

		w := httptest.NewRecorder()
		f.handler.HandleEmbed(w, newRequest(t, http.MethodPost, "/", EmbedRequest{
			NoteID:  noteID.String(),
			Title:   "Roadmap",
			Content: "<p>Ship search in the <em>second</em> quarter</p>",
		}, claims))

		require.Equal(t, http.StatusAccepted, w.Code)
		body := decodeMap(t, w)
		assert.Equal(t, jobID.String(), body["jobId"])
		assert.Equal(t, "queued", body["status"])
	})

	t.Run("short text is not indexed", func(t *testing.T) {
		f := newAIFixture()

		w := httptest.NewRecorder()
		f.handler.HandleEmbed(w, newRequest(t, http.MethodPost, "/", EmbedRequest{NoteID: noteID.String(), Title: "Hi"}, userClaims("")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.queue.AssertNotCalled(t, "Submit", mock.Anything)
	})

	t.Run("invalid note id", func(t *testing.T) {
		f := newAIFixture()

		w := httptest.NewRecorder()
		f.handler.HandleEmbed(w, newRequest(t, http.MethodPost, "/", EmbedRequest{NoteID: "42", Content: strings.Repeat("a", 40)}, userClaims("")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeMap(t, w)["details"], "noteId")
	})

	t.Run("full queue", func(t *testing.T) {
		f := newAIFixture()
		f.queue.On("Submit", mock.Anything).Return(uuid.Nil, embedding.ErrQueueFull)

		w := httptest.NewRecorder()
		f.handler.HandleEmbed(w, newRequest(t, http.MethodPost, "/", EmbedRequest{
			NoteID:  noteID.String(),
			Content: strings.Repeat("indexable ", 5),
		}, userClaims("")))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestAIHandler_Usage(t *testing.T) {
	f := newAIFixture()
	claims := userClaims("")
	f.usage.On("GetStatus", mock.Anything, claims.UserID).Return(&usage.Status{
		Tier:   payments.TierFree,
		Usage:  2,
		Limits: usage.LimitsFor(payments.TierFree),
	}, nil)

	w := httptest.NewRecorder()
	f.handler.HandleUsage(w, newRequest(t, http.MethodGet, "/api/v1/usage", nil, claims))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"free"`)

	missing := newAIFixture()
	other := userClaims("")
	missing.usage.On("GetStatus", mock.Anything, other.UserID).Return(nil, services.ErrProfileNotFound)

	w = httptest.NewRecorder()
	missing.handler.HandleUsage(w, newRequest(t, http.MethodGet, "/", nil, other))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
