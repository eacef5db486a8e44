package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amebo/notes-backend/services/providers"
	"go.uber.org/zap"
)

// ServiceConfig selects the active and enabled payment backends
type ServiceConfig struct {
	// DefaultProvider is active until SetProvider is called
	DefaultProvider ProviderName

	// EnabledProviders may be offered at checkout; the default is always enabled
	EnabledProviders []ProviderName

	// CallTimeout bounds each delegated call; zero disables the bound
	CallTimeout time.Duration
}

// Service dispatches payment operations to a backend chosen per call.
// Only checkout honours the enabled set; webhooks, portal, cancel and lookup
// work against any registered backend so existing subscribers keep working.
type Service struct {
	registry *providers.Registry[ProviderName, Provider]
	active   atomic.Value // ProviderName
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	enabled map[ProviderName]struct{}
}

// NewService registers backends and validates the configured provider set
func NewService(cfg ServiceConfig, backends []Provider, logger *zap.Logger) (*Service, error) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = ProviderStripe
	}

	registry := providers.NewRegistry[ProviderName, Provider]()
	for _, backend := range backends {
		if err := registry.Register(backend.Name(), backend); err != nil {
			return nil, err
		}
	}

	if !registry.Has(cfg.DefaultProvider) {
		return nil, fmt.Errorf("default payment provider: %w: %s", providers.ErrProviderNotFound, cfg.DefaultProvider)
	}

	enabled := map[ProviderName]struct{}{cfg.DefaultProvider: {}}
	for _, name := range cfg.EnabledProviders {
		if !registry.Has(name) {
			return nil, fmt.Errorf("enabled payment provider: %w: %s", providers.ErrProviderNotFound, name)
		}
		enabled[name] = struct{}{}
	}

	s := &Service{
		registry: registry,
		timeout:  cfg.CallTimeout,
		logger:   logger,
		enabled:  enabled,
	}
	s.active.Store(cfg.DefaultProvider)

	logger.Info("payment service initialized",
		zap.String("active", string(cfg.DefaultProvider)),
		zap.Strings("enabled", toStrings(s.GetEnabledProviders())),
	)

	return s, nil
}

// SetProvider switches the active backend and enables it
func (s *Service) SetProvider(name ProviderName) error {
	if !s.registry.Has(name) {
		return fmt.Errorf("unknown payment provider: %w: %s", providers.ErrProviderNotFound, name)
	}

	s.mu.Lock()
	s.enabled[name] = struct{}{}
	previous := s.GetProvider()
	s.active.Store(name)
	s.mu.Unlock()

	s.logger.Info("payment provider switched",
		zap.String("from", string(previous)),
		zap.String("to", string(name)),
	)
	return nil
}

// EnableProvider allows name to be chosen at checkout
func (s *Service) EnableProvider(name ProviderName) error {
	if !s.registry.Has(name) {
		return fmt.Errorf("unknown payment provider: %w: %s", providers.ErrProviderNotFound, name)
	}

	s.mu.Lock()
	s.enabled[name] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("payment provider enabled", zap.String("provider", string(name)))
	return nil
}

// DisableProvider stops offering name at checkout. The active backend cannot
// be disabled; switch to another one first.
func (s *Service) DisableProvider(name ProviderName) error {
	if !s.registry.Has(name) {
		return fmt.Errorf("unknown payment provider: %w: %s", providers.ErrProviderNotFound, name)
	}

	s.mu.Lock()
	if s.GetProvider() == name {
		s.mu.Unlock()
		return fmt.Errorf("disable payment provider: %w: %s", providers.ErrActiveProvider, name)
	}
	delete(s.enabled, name)
	s.mu.Unlock()

	s.logger.Info("payment provider disabled", zap.String("provider", string(name)))
	return nil
}

// GetProvider returns the active backend name
func (s *Service) GetProvider() ProviderName {
	return s.active.Load().(ProviderName)
}

// GetEnabledProviders returns the enabled set, sorted
func (s *Service) GetEnabledProviders() []ProviderName {
	s.mu.RLock()
	names := make([]ProviderName, 0, len(s.enabled))
	for name := range s.enabled {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// GetAvailableProviders returns registered backend names in registration order
func (s *Service) GetAvailableProviders() []ProviderName {
	return s.registry.Names()
}

// IsEnabled reports whether name may be used at checkout
func (s *Service) IsEnabled(name ProviderName) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.enabled[name]
	return ok
}

// CreateCheckout opens a hosted checkout on override, or the active backend when empty
func (s *Service) CreateCheckout(ctx context.Context, plan Tier, userID, email string, override ProviderName) (*CheckoutSession, error) {
	backend, err := s.resolve(override)
	if err != nil {
		return nil, err
	}
	if !s.IsEnabled(backend.Name()) {
		return nil, fmt.Errorf("%w: %s", providers.ErrProviderDisabled, backend.Name())
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.CreateCheckout(ctx, plan, userID, email)
}

// HandleWebhook verifies and normalizes a webhook for the named backend
func (s *Service) HandleWebhook(ctx context.Context, provider ProviderName, payload []byte, signature string) (*WebhookResult, error) {
	backend, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := backend.HandleWebhook(ctx, payload, signature)
	if err != nil {
		s.logger.Warn("webhook rejected",
			zap.String("provider", string(provider)),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

// GetCustomerPortalURL returns the billing management URL for customerID
func (s *Service) GetCustomerPortalURL(ctx context.Context, customerID string, override ProviderName) (string, error) {
	backend, err := s.resolve(override)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.GetCustomerPortalURL(ctx, customerID)
}

// CancelSubscription cancels subscriptionID at the vendor
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string, override ProviderName) error {
	backend, err := s.resolve(override)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.CancelSubscription(ctx, subscriptionID)
}

// GetSubscription looks up subscriptionID; nil, nil means the vendor has no record
func (s *Service) GetSubscription(ctx context.Context, subscriptionID string, override ProviderName) (*Subscription, error) {
	backend, err := s.resolve(override)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return backend.GetSubscription(ctx, subscriptionID)
}

// VerifyCallback confirms a redirect-callback payment on backends that support it
func (s *Service) VerifyCallback(ctx context.Context, provider ProviderName, reference string) (*WebhookResult, error) {
	backend, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	verifier, ok := backend.(CallbackVerifier)
	if !ok {
		return nil, providers.Unsupported(string(provider), "callback verification")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return verifier.VerifyCallback(ctx, reference)
}

func (s *Service) resolve(override ProviderName) (Provider, error) {
	name := override
	if name == "" {
		name = s.GetProvider()
	}
	return s.registry.Get(name)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func toStrings(names []ProviderName) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = string(name)
	}
	return out
}
