package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/providers"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-haiku-20240307"
	APIVersion     = "2023-06-01"

	analysisMaxTokens = 1024
	chatMaxTokens     = 2048

	envAPIKey = "ANTHROPIC_API_KEY"
)

// Config configures the Anthropic backend
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Backend implements ai.Provider for the Anthropic Messages API.
// It has no embedding model and cannot transcribe.
type Backend struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBackend creates the Anthropic backend
func NewBackend(cfg Config, logger *zap.Logger) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Backend{
		config:     cfg,
		httpClient: providers.NewHTTPClient(cfg.Timeout),
		logger:     logger.With(zap.String("provider", string(ai.ProviderAnthropic))),
	}
}

// Name returns the provider name
func (b *Backend) Name() ai.ProviderName {
	return ai.ProviderAnthropic
}

// Capabilities returns no optional capabilities
func (b *Backend) Capabilities() ai.Capability {
	return 0
}

// Summarize asks Claude for a JSON summary
func (b *Backend) Summarize(ctx context.Context, content string) (*ai.SummaryResult, error) {
	prompt := "Analyze this note content and provide a summary in JSON format:\n" +
		ai.SummarySchema + "\n\nNote content:\n" + content

	text, err := b.createMessage(ctx, &messagesRequest{
		Model:     b.config.Model,
		MaxTokens: analysisMaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	return ai.ParseSummary(b.Name(), text)
}

// Organize asks Claude for organization suggestions in JSON
func (b *Backend) Organize(ctx context.Context, content string) (*ai.OrganizationResult, error) {
	prompt := "Analyze this note and suggest organization in JSON format:\n" +
		ai.OrganizationSchema + "\n\nNote content:\n" + content

	text, err := b.createMessage(ctx, &messagesRequest{
		Model:     b.config.Model,
		MaxTokens: analysisMaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	return ai.ParseOrganization(b.Name(), text)
}

// GenerateEmbedding is not available on Anthropic
func (b *Backend) GenerateEmbedding(ctx context.Context, text string) (ai.Embedding, error) {
	return nil, providers.Unsupported(string(b.Name()), "embeddings")
}

// Chat sends the persona in the system field
func (b *Backend) Chat(ctx context.Context, messages []ai.ChatMessage, notesContext string) (string, error) {
	req := &messagesRequest{
		Model:     b.config.Model,
		MaxTokens: chatMaxTokens,
		System:    ai.ChatSystemPrompt(notesContext),
		Messages:  make([]message, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, message{Role: string(m.Role), Content: m.Content})
	}

	return b.createMessage(ctx, req)
}

func (b *Backend) createMessage(ctx context.Context, req *messagesRequest) (string, error) {
	if b.config.APIKey == "" {
		return "", providers.MissingCredential(string(b.Name()), envAPIKey)
	}

	headers := map[string]string{
		"x-api-key":         b.config.APIKey,
		"anthropic-version": APIVersion,
	}
	resp, err := providers.SendJSON(ctx, b.httpClient, http.MethodPost, b.config.BaseURL+"/v1/messages", headers, req)
	if err != nil {
		return "", providers.NewProviderError(string(b.Name()), providers.CodeHTTPError, "messages request failed", 0, err)
	}
	if !resp.OK() {
		return "", b.handleErrorResponse(resp.StatusCode, resp.Body)
	}

	var msgResp messagesResponse
	if err := resp.Decode(&msgResp); err != nil {
		return "", providers.NewProviderError(string(b.Name()), providers.CodeParseError, "failed to decode response", resp.StatusCode, err)
	}

	// Only the first block is read; a non-text first block yields an empty reply.
	if len(msgResp.Content) == 0 || msgResp.Content[0].Type != "text" {
		return "", nil
	}
	return msgResp.Content[0].Text, nil
}

func (b *Backend) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(string(b.Name()), providers.CodeHTTPError,
			fmt.Sprintf("unexpected status %d", statusCode), statusCode, errors.New(string(body)))
	}

	return providers.NewProviderError(string(b.Name()), providers.CodeVendorError,
		errResp.Error.Message, statusCode, errors.New(errResp.Error.Type))
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
