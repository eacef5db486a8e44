package openai

import (
	"context"
	"time"

	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/providers"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL            = "https://api.openai.com/v1"
	DefaultChatModel          = "gpt-4o-mini"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultTranscriptionModel = "whisper-1"

	envAPIKey = "OPENAI_API_KEY"
)

const summarizePrompt = `You are an AI assistant that summarizes notes. Analyze the content and provide:
1. A concise summary (2-3 sentences)
2. Key points (as bullet points)
3. Action items (tasks mentioned or implied)

Respond in JSON format:
` + ai.SummarySchema

const organizePrompt = `Analyze this note and suggest organization. Provide:
1. A suggested folder name (or null if unclear)
2. Suggested tags (up to 5)
3. Main topics discussed
4. Urgency level (low/medium/high based on deadlines or importance)

Respond in JSON:
` + ai.OrganizationSchema

// Config configures the OpenAI backend
type Config struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	EmbeddingModel     string
	TranscriptionModel string
	Timeout            time.Duration
}

// Backend implements ai.Provider and ai.Transcriber for OpenAI
type Backend struct {
	client *Client
	config Config
	logger *zap.Logger
}

// NewBackend creates the OpenAI backend
func NewBackend(cfg Config, logger *zap.Logger) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptionModel
	}

	return &Backend{
		client: NewClient(ClientConfig{
			Provider: string(ai.ProviderOpenAI),
			EnvKey:   envAPIKey,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
		}),
		config: cfg,
		logger: logger.With(zap.String("provider", string(ai.ProviderOpenAI))),
	}
}

// Name returns the provider name
func (b *Backend) Name() ai.ProviderName {
	return ai.ProviderOpenAI
}

// Capabilities reports embeddings and transcription support
func (b *Backend) Capabilities() ai.Capability {
	return ai.CapEmbeddings | ai.CapTranscription
}

// Summarize requests a JSON summary of content
func (b *Backend) Summarize(ctx context.Context, content string) (*ai.SummaryResult, error) {
	text, err := b.jsonCompletion(ctx, summarizePrompt, content)
	if err != nil {
		return nil, err
	}
	return ai.ParseSummary(b.Name(), text)
}

// Organize requests folder, tag and urgency suggestions for content
func (b *Backend) Organize(ctx context.Context, content string) (*ai.OrganizationResult, error) {
	text, err := b.jsonCompletion(ctx, organizePrompt, content)
	if err != nil {
		return nil, err
	}
	return ai.ParseOrganization(b.Name(), text)
}

// GenerateEmbedding embeds text with the configured embedding model
func (b *Backend) GenerateEmbedding(ctx context.Context, text string) (ai.Embedding, error) {
	vector, err := b.client.Embedding(ctx, b.config.EmbeddingModel, text)
	if err != nil {
		return nil, err
	}
	return ai.Embedding(vector), nil
}

// Transcribe converts audio to text with Whisper
func (b *Backend) Transcribe(ctx context.Context, audio []byte, mimeType string) (*ai.TranscriptionResult, error) {
	resp, err := b.client.Transcription(ctx, b.config.TranscriptionModel, audio, mimeType)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("transcription completed", zap.Float64("duration", resp.Duration))

	result := &ai.TranscriptionResult{
		Text:     resp.Text,
		Duration: resp.Duration,
		Language: resp.Language,
	}
	if result.Language == "" {
		result.Language = ai.DefaultLanguage
	}
	return result, nil
}

// Chat answers the conversation with the notes context in the system prompt
func (b *Backend) Chat(ctx context.Context, messages []ai.ChatMessage, notesContext string) (string, error) {
	return b.client.ChatCompletion(ctx, &ChatRequest{
		Model:    b.config.ChatModel,
		Messages: ConvertMessages(ai.ChatSystemPrompt(notesContext), messages),
	})
}

func (b *Backend) jsonCompletion(ctx context.Context, system, content string) (string, error) {
	text, err := b.client.ChatCompletion(ctx, &ChatRequest{
		Model: b.config.ChatModel,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: content},
		},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", providers.Wrap(string(b.Name()), "chat completion failed", err)
	}
	return text, nil
}

// ConvertMessages prepends a system message to the conversation
func ConvertMessages(system string, messages []ai.ChatMessage) []Message {
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: "system", Content: system})
	for _, m := range messages {
		out = append(out, Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
