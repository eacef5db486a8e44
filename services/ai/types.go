package ai

import (
	"context"
)

// ProviderName identifies an AI backend
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderGemini    ProviderName = "gemini"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGrok      ProviderName = "grok"
)

// Capability is a bit set of optional operations a backend supports
type Capability uint8

const (
	CapEmbeddings Capability = 1 << iota
	CapTranscription
)

// Has reports whether c includes all bits of other
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Urgency classifies how time-sensitive a note is
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Role is the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SummaryResult is the normalized output of Summarize
type SummaryResult struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"keyPoints"`
	ActionItems []string `json:"actionItems"`
}

// OrganizationResult is the normalized output of Organize
type OrganizationResult struct {
	SuggestedFolder *string  `json:"suggestedFolder"`
	SuggestedTags   []string `json:"suggestedTags"`
	Topics          []string `json:"topics"`
	Urgency         Urgency  `json:"urgency"`
}

// TranscriptionResult is the normalized output of Transcribe
type TranscriptionResult struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

// Embedding is a dense vector; its length depends on the backend that produced it
type Embedding []float64

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// Provider is the contract every AI backend implements
type Provider interface {
	// Name returns the backend's registry name
	Name() ProviderName

	// Capabilities reports which optional operations are implemented
	Capabilities() Capability

	Summarize(ctx context.Context, content string) (*SummaryResult, error)
	GenerateEmbedding(ctx context.Context, text string) (Embedding, error)
	Organize(ctx context.Context, content string) (*OrganizationResult, error)

	// Chat answers the conversation, grounding the system prompt on notesContext when non-empty
	Chat(ctx context.Context, messages []ChatMessage, notesContext string) (string, error)
}

// Transcriber is implemented by backends that can turn audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*TranscriptionResult, error)
}
