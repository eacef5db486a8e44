package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amebo/notes-backend/middleware"
	"github.com/amebo/notes-backend/services"
	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/embedding"
	"github.com/amebo/notes-backend/services/usage"
	"github.com/amebo/notes-backend/utils"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minSummarizeChars = 50
	minOrganizeChars  = 20
	minEmbedChars     = 20

	// MaxAudioBytes is the largest upload accepted by the transcription endpoint
	MaxAudioBytes    = 10 << 20
	defaultAudioMIME = "audio/webm"
)

// AIService is the AI facade as used by the HTTP layer
type AIService interface {
	Summarize(ctx context.Context, content string) (*ai.SummaryResult, error)
	Organize(ctx context.Context, content string) (*ai.OrganizationResult, error)
	Chat(ctx context.Context, messages []ai.ChatMessage, notesContext string) (string, error)
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*ai.TranscriptionResult, error)
}

// UsageService checks and records plan usage
type UsageService interface {
	GetStatus(ctx context.Context, userID uuid.UUID) (*usage.Status, error)
	CanSummarize(ctx context.Context, userID uuid.UUID) (bool, error)
	CanTranscribe(ctx context.Context, userID uuid.UUID) (bool, error)
	RecordAIUsage(ctx context.Context, userID uuid.UUID) error
}

// EmbeddingQueue accepts notes for background indexing
type EmbeddingQueue interface {
	Submit(job embedding.Job) (uuid.UUID, error)
}

// ContentRequest is the body of summarize and organize
type ContentRequest struct {
	Content string `json:"content"`
}

// ChatRequest is the body of POST /ai/chat
type ChatRequest struct {
	Messages     []ai.ChatMessage `json:"messages" validate:"required,min=1,dive"`
	NotesContext string           `json:"notesContext,omitempty"`
}

// ChatResponse is returned by POST /ai/chat
type ChatResponse struct {
	Reply string `json:"reply"`
}

// EmbedRequest is the body of POST /ai/embeddings
type EmbedRequest struct {
	NoteID  string `json:"noteId" validate:"required,uuid"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// EmbedResponse is returned when a note is queued for indexing
type EmbedResponse struct {
	JobID  string `json:"jobId"`
	NoteID string `json:"noteId"`
	Status string `json:"status"`
}

// TranscribeResponse is returned by POST /ai/transcribe
type TranscribeResponse struct {
	Transcription  *ai.TranscriptionResult `json:"transcription"`
	SuggestedTitle string                  `json:"suggestedTitle"`
}

// AIHandler handles the /ai endpoints
type AIHandler struct {
	ai     AIService
	usage  UsageService
	queue  EmbeddingQueue
	logger *zap.Logger
	now    func() time.Time
}

// NewAIHandler creates a new AIHandler
func NewAIHandler(aiService AIService, usageService UsageService, queue EmbeddingQueue, logger *zap.Logger) *AIHandler {
	return &AIHandler{
		ai:     aiService,
		usage:  usageService,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// HandleSummarize handles POST /ai/summarize. Usage is recorded only after
// the provider call succeeds.
func (h *AIHandler) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req ContentRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Content)) < minSummarizeChars {
		HandleServiceError(w, contentTooShort(minSummarizeChars), h.logger)
		return
	}

	allowed, err := h.usage.CanSummarize(ctx, userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if !allowed {
		HandleServiceError(w, services.ErrSummaryLimitReached, h.logger)
		return
	}

	summary, err := h.ai.Summarize(ctx, utils.StripHTML(req.Content))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := h.usage.RecordAIUsage(ctx, userID); err != nil {
		// the summary is already paid for by the provider; return it anyway
		h.logger.Error("failed to record AI usage",
			zap.String("request_id", chimw.GetReqID(ctx)),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	_ = utils.WriteOK(w, summary)
}

// HandleOrganize handles POST /ai/organize
func (h *AIHandler) HandleOrganize(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.userID(w, r); !ok {
		return
	}

	var req ContentRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Content)) < minOrganizeChars {
		HandleServiceError(w, contentTooShort(minOrganizeChars), h.logger)
		return
	}

	result, err := h.ai.Organize(r.Context(), utils.StripHTML(req.Content))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}

// HandleChat handles POST /ai/chat
func (h *AIHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.userID(w, r); !ok {
		return
	}

	var req ChatRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	reply, err := h.ai.Chat(r.Context(), req.Messages, utils.StripHTML(req.NotesContext))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, ChatResponse{Reply: reply})
}

// HandleTranscribe handles POST /ai/transcribe with a multipart "file" field
func (h *AIHandler) HandleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	// allow for multipart framing on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioBytes+1<<20)
	if err := r.ParseMultipartForm(MaxAudioBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			HandleServiceError(w, services.ErrFileTooLarge, h.logger)
			return
		}
		_ = utils.WriteBadRequest(w, "Expected multipart form data", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = utils.WriteBadRequest(w, "No file provided", nil)
		return
	}
	defer file.Close()

	allowed, err := h.usage.CanTranscribe(ctx, userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if !allowed {
		HandleServiceError(w, services.ErrTranscriptionNotInPlan, h.logger)
		return
	}

	if header.Size > MaxAudioBytes {
		HandleServiceError(w, services.ErrFileTooLarge, h.logger)
		return
	}

	audio, err := io.ReadAll(io.LimitReader(file, MaxAudioBytes+1))
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to read upload", err), h.logger)
		return
	}
	if len(audio) > MaxAudioBytes {
		HandleServiceError(w, services.ErrFileTooLarge, h.logger)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = defaultAudioMIME
	}

	result, err := h.ai.Transcribe(ctx, audio, mimeType)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, TranscribeResponse{
		Transcription:  result,
		SuggestedTitle: "Transcription " + h.now().UTC().Format("2006-01-02 15:04"),
	})
}

// HandleEmbed handles POST /ai/embeddings by queueing the note for indexing
func (h *AIHandler) HandleEmbed(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req EmbedRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	noteID := uuid.MustParse(req.NoteID)
	text := strings.TrimSpace(req.Title + "\n\n" + utils.StripHTML(req.Content))
	if utf8.RuneCountInString(text) <= minEmbedChars {
		HandleServiceError(w, contentTooShort(minEmbedChars+1), h.logger)
		return
	}

	jobID, err := h.queue.Submit(embedding.Job{NoteID: noteID, UserID: userID, Text: text})
	if err != nil {
		if errors.Is(err, embedding.ErrQueueFull) || errors.Is(err, embedding.ErrClosed) {
			_ = utils.WriteError(w, http.StatusServiceUnavailable, "Indexing queue is busy, retry later", nil)
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to queue note", err), h.logger)
		return
	}

	_ = utils.WriteAccepted(w, EmbedResponse{
		JobID:  jobID.String(),
		NoteID: noteID.String(),
		Status: "queued",
	})
}

// HandleUsage handles GET /usage
func (h *AIHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	status, err := h.usage.GetStatus(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, status)
}

func (h *AIHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return requireUser(w, r, h.logger)
}

func requireUser(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		logger.Error("user id missing from context", zap.String("request_id", chimw.GetReqID(r.Context())))
		_ = utils.WriteUnauthorized(w, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

func contentTooShort(min int) error {
	return services.ErrContentTooShort.WithDetail("minLength", min)
}
