package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/providers"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel          = "gemini-1.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"

	envAPIKey = "GOOGLE_GEMINI_API_KEY"
)

// Config configures the Gemini backend
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

// Backend implements ai.Provider and ai.Transcriber against the Generative Language REST API
type Backend struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBackend creates the Gemini backend
func NewBackend(cfg Config, logger *zap.Logger) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}

	return &Backend{
		config:     cfg,
		httpClient: providers.NewHTTPClient(cfg.Timeout),
		logger:     logger.With(zap.String("provider", string(ai.ProviderGemini))),
	}
}

// Name returns the provider name
func (b *Backend) Name() ai.ProviderName {
	return ai.ProviderGemini
}

// Capabilities reports embeddings and transcription support
func (b *Backend) Capabilities() ai.Capability {
	return ai.CapEmbeddings | ai.CapTranscription
}

// Summarize asks for a JSON summary and extracts it from the reply
func (b *Backend) Summarize(ctx context.Context, note string) (*ai.SummaryResult, error) {
	prompt := "Analyze this note content and provide a summary in JSON format:\n" +
		ai.SummarySchema + "\n\nNote content:\n" + note

	text, err := b.generate(ctx, &generateRequest{Contents: []content{userText(prompt)}})
	if err != nil {
		return nil, err
	}
	return ai.ParseSummary(b.Name(), text)
}

// Organize asks for organization suggestions in JSON
func (b *Backend) Organize(ctx context.Context, note string) (*ai.OrganizationResult, error) {
	prompt := "Analyze this note and suggest organization in JSON format:\n" +
		ai.OrganizationSchema + "\n\nNote content:\n" + note

	text, err := b.generate(ctx, &generateRequest{Contents: []content{userText(prompt)}})
	if err != nil {
		return nil, err
	}
	return ai.ParseOrganization(b.Name(), text)
}

// Chat maps assistant turns to Gemini's "model" role and sends the persona as a system instruction
func (b *Backend) Chat(ctx context.Context, messages []ai.ChatMessage, notesContext string) (string, error) {
	req := &generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: ai.ChatSystemPrompt(notesContext)}}},
		Contents:          make([]content, 0, len(messages)),
	}
	for _, m := range messages {
		role := "user"
		if m.Role == ai.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	return b.generate(ctx, req)
}

// GenerateEmbedding calls embedContent on the embedding model
func (b *Backend) GenerateEmbedding(ctx context.Context, text string) (ai.Embedding, error) {
	if err := b.checkCredentials(); err != nil {
		return nil, err
	}

	model := "models/" + b.config.EmbeddingModel
	body := embedRequest{
		Model:   model,
		Content: content{Parts: []part{{Text: text}}},
	}

	resp, err := providers.SendJSON(ctx, b.httpClient, http.MethodPost, b.endpoint(b.config.EmbeddingModel, "embedContent"), b.authHeaders(), body)
	if err != nil {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeHTTPError, "embedding request failed", 0, err)
	}
	if !resp.OK() {
		return nil, b.handleErrorResponse(resp.StatusCode, resp.Body)
	}

	var embResp embedResponse
	if err := resp.Decode(&embResp); err != nil {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeParseError, "failed to decode embedding", resp.StatusCode, err)
	}
	if len(embResp.Embedding.Values) == 0 {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeVendorError, "embedding response was empty", resp.StatusCode, nil)
	}
	return ai.Embedding(embResp.Embedding.Values), nil
}

// Transcribe sends the audio inline and asks for a JSON transcript
func (b *Backend) Transcribe(ctx context.Context, audio []byte, mimeType string) (*ai.TranscriptionResult, error) {
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	prompt := "Transcribe this audio file accurately. Also provide the language and estimated duration in seconds. Respond in JSON format:\n" +
		ai.TranscriptionSchema

	req := &generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(audio)}},
			},
		}},
	}

	text, err := b.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return ai.ParseTranscription(b.Name(), text)
}

func (b *Backend) generate(ctx context.Context, req *generateRequest) (string, error) {
	if err := b.checkCredentials(); err != nil {
		return "", err
	}

	resp, err := providers.SendJSON(ctx, b.httpClient, http.MethodPost, b.endpoint(b.config.Model, "generateContent"), b.authHeaders(), req)
	if err != nil {
		return "", providers.NewProviderError(string(b.Name()), providers.CodeHTTPError, "generateContent request failed", 0, err)
	}
	if !resp.OK() {
		return "", b.handleErrorResponse(resp.StatusCode, resp.Body)
	}

	var genResp generateResponse
	if err := resp.Decode(&genResp); err != nil {
		return "", providers.NewProviderError(string(b.Name()), providers.CodeParseError, "failed to decode response", resp.StatusCode, err)
	}
	if len(genResp.Candidates) == 0 {
		reason := "no candidates returned"
		if genResp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + genResp.PromptFeedback.BlockReason
		}
		return "", providers.NewProviderError(string(b.Name()), providers.CodeVendorError, reason, resp.StatusCode, nil)
	}

	var sb strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (b *Backend) endpoint(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s", b.config.BaseURL, model, url.PathEscape(method))
}

// authHeaders keeps the key out of the URL, which transport errors echo back
func (b *Backend) authHeaders() map[string]string {
	return map[string]string{"x-goog-api-key": b.config.APIKey}
}

func (b *Backend) checkCredentials() error {
	if b.config.APIKey == "" {
		return providers.MissingCredential(string(b.Name()), envAPIKey)
	}
	return nil
}

func (b *Backend) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(string(b.Name()), providers.CodeHTTPError,
			fmt.Sprintf("unexpected status %d", statusCode), statusCode, errors.New(string(body)))
	}

	b.logger.Debug("gemini error response",
		zap.Int("status", statusCode),
		zap.String("reason", errResp.Error.Status),
	)
	return providers.NewProviderError(string(b.Name()), providers.CodeVendorError,
		errResp.Error.Message, statusCode, errors.New(errResp.Error.Status))
}

func userText(text string) content {
	return content{Role: "user", Parts: []part{{Text: text}}}
}

// Gemini wire types

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type embedRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
