package grok

import (
	"context"
	"time"

	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/ai/openai"
	"github.com/amebo/notes-backend/services/providers"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.x.ai/v1"
	DefaultModel   = "grok-beta"

	envAPIKey = "GROK_API_KEY"
)

// Config configures the Grok backend
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Backend implements ai.Provider over xAI's OpenAI-compatible endpoint.
// xAI exposes no JSON response mode here, so replies are scanned for an object.
type Backend struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewBackend creates the Grok backend
func NewBackend(cfg Config, logger *zap.Logger) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Backend{
		client: openai.NewClient(openai.ClientConfig{
			Provider: string(ai.ProviderGrok),
			EnvKey:   envAPIKey,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
		}),
		model:  cfg.Model,
		logger: logger.With(zap.String("provider", string(ai.ProviderGrok))),
	}
}

// Name returns the provider name
func (b *Backend) Name() ai.ProviderName {
	return ai.ProviderGrok
}

// Capabilities returns no optional capabilities
func (b *Backend) Capabilities() ai.Capability {
	return 0
}

// Summarize asks for a JSON summary
func (b *Backend) Summarize(ctx context.Context, content string) (*ai.SummaryResult, error) {
	text, err := b.complete(ctx, "Summarize the note. Respond in JSON:\n"+ai.SummarySchema, content)
	if err != nil {
		return nil, err
	}
	return ai.ParseSummary(b.Name(), text)
}

// Organize asks for organization suggestions in JSON
func (b *Backend) Organize(ctx context.Context, content string) (*ai.OrganizationResult, error) {
	text, err := b.complete(ctx, "Analyze and suggest organization. Respond in JSON:\n"+ai.OrganizationSchema, content)
	if err != nil {
		return nil, err
	}
	return ai.ParseOrganization(b.Name(), text)
}

// GenerateEmbedding is not available on Grok
func (b *Backend) GenerateEmbedding(ctx context.Context, text string) (ai.Embedding, error) {
	return nil, providers.Unsupported(string(b.Name()), "embeddings")
}

// Chat answers the conversation with the notes context in the system prompt
func (b *Backend) Chat(ctx context.Context, messages []ai.ChatMessage, notesContext string) (string, error) {
	return b.client.ChatCompletion(ctx, &openai.ChatRequest{
		Model:    b.model,
		Messages: openai.ConvertMessages(ai.ChatSystemPrompt(notesContext), messages),
	})
}

func (b *Backend) complete(ctx context.Context, system, content string) (string, error) {
	return b.client.ChatCompletion(ctx, &openai.ChatRequest{
		Model: b.model,
		Messages: []openai.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: content},
		},
	})
}
