package ai

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/amebo/notes-backend/services/providers"
	"go.uber.org/zap"
)

// ServiceConfig selects the backends the facade dispatches to
type ServiceConfig struct {
	// DefaultProvider is active until SetProvider is called
	DefaultProvider ProviderName

	// FallbackProvider serves embeddings and transcription when the active backend cannot
	FallbackProvider ProviderName

	// CallTimeout bounds each delegated call; zero disables the bound
	CallTimeout time.Duration
}

// ProviderInfo describes a registered backend
type ProviderInfo struct {
	Name          ProviderName `json:"name"`
	Active        bool         `json:"active"`
	Embeddings    bool         `json:"embeddings"`
	Transcription bool         `json:"transcription"`
}

// Service dispatches AI operations to the active backend.
// Switching the active backend is last-write-wins: a call resolves its backend
// once at start and keeps it even if SetProvider runs concurrently.
type Service struct {
	registry *providers.Registry[ProviderName, Provider]
	active   atomic.Value // ProviderName
	fallback ProviderName
	timeout  time.Duration
	logger   *zap.Logger
}

// NewService registers backends and validates the configured default and fallback
func NewService(cfg ServiceConfig, backends []Provider, logger *zap.Logger) (*Service, error) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ProviderOpenAI
	}
	if cfg.FallbackProvider == "" {
		cfg.FallbackProvider = ProviderOpenAI
	}

	registry := providers.NewRegistry[ProviderName, Provider]()
	for _, backend := range backends {
		if err := registry.Register(backend.Name(), backend); err != nil {
			return nil, err
		}
	}

	if !registry.Has(cfg.DefaultProvider) {
		return nil, fmt.Errorf("default AI provider: %w: %s", providers.ErrProviderNotFound, cfg.DefaultProvider)
	}
	if !registry.Has(cfg.FallbackProvider) {
		return nil, fmt.Errorf("fallback AI provider: %w: %s", providers.ErrProviderNotFound, cfg.FallbackProvider)
	}

	s := &Service{
		registry: registry,
		fallback: cfg.FallbackProvider,
		timeout:  cfg.CallTimeout,
		logger:   logger,
	}
	s.active.Store(cfg.DefaultProvider)

	logger.Info("AI service initialized",
		zap.String("active", string(cfg.DefaultProvider)),
		zap.String("fallback", string(cfg.FallbackProvider)),
		zap.Int("backends", registry.Count()),
	)

	return s, nil
}

// SetProvider switches the active backend. Unknown names leave state unchanged.
func (s *Service) SetProvider(name ProviderName) error {
	if !s.registry.Has(name) {
		return fmt.Errorf("unknown AI provider: %w: %s", providers.ErrProviderNotFound, name)
	}

	previous := s.GetProvider()
	s.active.Store(name)

	s.logger.Info("AI provider switched",
		zap.String("from", string(previous)),
		zap.String("to", string(name)),
	)
	return nil
}

// GetProvider returns the active backend name
func (s *Service) GetProvider() ProviderName {
	return s.active.Load().(ProviderName)
}

// GetAvailableProviders returns registered backend names in registration order
func (s *Service) GetAvailableProviders() []ProviderName {
	return s.registry.Names()
}

// Describe reports each backend's capabilities and which one is active
func (s *Service) Describe() []ProviderInfo {
	active := s.GetProvider()
	names := s.registry.Names()

	infos := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		backend, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		_, transcribes := backend.(Transcriber)
		infos = append(infos, ProviderInfo{
			Name:          name,
			Active:        name == active,
			Embeddings:    backend.Capabilities().Has(CapEmbeddings),
			Transcription: transcribes,
		})
	}
	return infos
}

// Summarize delegates to the active backend
func (s *Service) Summarize(ctx context.Context, content string) (*SummaryResult, error) {
	backend, err := s.current()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.Summarize(ctx, content)
}

// Organize delegates to the active backend
func (s *Service) Organize(ctx context.Context, content string) (*OrganizationResult, error) {
	backend, err := s.current()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.Organize(ctx, content)
}

// Chat delegates to the active backend
func (s *Service) Chat(ctx context.Context, messages []ChatMessage, notesContext string) (string, error) {
	backend, err := s.current()
	if err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.Chat(ctx, messages, notesContext)
}

// GenerateEmbedding uses the active backend when it supports embeddings and
// silently substitutes the fallback backend otherwise
func (s *Service) GenerateEmbedding(ctx context.Context, text string) (Embedding, error) {
	embedding, _, err := s.GenerateEmbeddingFrom(ctx, text)
	return embedding, err
}

// GenerateEmbeddingFrom is GenerateEmbedding that also names the backend which produced the vector
func (s *Service) GenerateEmbeddingFrom(ctx context.Context, text string) (Embedding, ProviderName, error) {
	active, err := s.current()
	if err != nil {
		return nil, "", err
	}

	if active.Capabilities().Has(CapEmbeddings) {
		embedding, err := s.embed(ctx, active, text)
		if err == nil || !providers.IsUnsupported(err) {
			return embedding, active.Name(), err
		}
	}

	fallback, err := s.registry.Get(s.fallback)
	if err != nil {
		return nil, "", err
	}
	if fallback.Name() == active.Name() {
		return nil, "", providers.Unsupported(string(active.Name()), "embeddings")
	}

	s.logger.Warn("active AI provider does not support embeddings, using fallback",
		zap.String("active", string(active.Name())),
		zap.String("fallback", string(fallback.Name())),
	)
	embedding, err := s.embed(ctx, fallback, text)
	return embedding, fallback.Name(), err
}

// Transcribe uses the active backend when it can transcribe, then the fallback
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimeType string) (*TranscriptionResult, error) {
	active, err := s.current()
	if err != nil {
		return nil, err
	}

	if transcriber, ok := active.(Transcriber); ok {
		result, err := s.transcribe(ctx, transcriber, audio, mimeType)
		if err == nil || !providers.IsUnsupported(err) {
			return result, err
		}
	}

	if s.fallback != active.Name() {
		fallback, err := s.registry.Get(s.fallback)
		if err != nil {
			return nil, err
		}
		if transcriber, ok := fallback.(Transcriber); ok {
			s.logger.Warn("active AI provider does not support transcription, using fallback",
				zap.String("active", string(active.Name())),
				zap.String("fallback", string(fallback.Name())),
			)
			return s.transcribe(ctx, transcriber, audio, mimeType)
		}
	}

	return nil, providers.NewProviderError(string(active.Name()), providers.CodeUnavailable,
		"no transcription service available", 0, providers.ErrUnsupported)
}

func (s *Service) current() (Provider, error) {
	return s.registry.Get(s.GetProvider())
}

func (s *Service) embed(ctx context.Context, backend Provider, text string) (Embedding, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.GenerateEmbedding(ctx, text)
}

func (s *Service) transcribe(ctx context.Context, backend Transcriber, audio []byte, mimeType string) (*TranscriptionResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.Transcribe(ctx, audio, mimeType)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
