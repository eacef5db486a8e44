package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amebo/notes-backend/config"
	"github.com/amebo/notes-backend/handlers"
	"github.com/amebo/notes-backend/middleware"
	"github.com/amebo/notes-backend/repositories"
	"github.com/amebo/notes-backend/repositories/postgres"
	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/ai/anthropic"
	"github.com/amebo/notes-backend/services/ai/gemini"
	"github.com/amebo/notes-backend/services/ai/grok"
	"github.com/amebo/notes-backend/services/ai/openai"
	"github.com/amebo/notes-backend/services/embedding"
	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/services/payments/paystack"
	"github.com/amebo/notes-backend/services/payments/stripe"
	"github.com/amebo/notes-backend/services/usage"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Profiles   repositories.ProfileRepository
	Embeddings repositories.EmbeddingRepository
	TxManager  repositories.TransactionManager

	// Facades
	AI       *ai.Service
	Payments *payments.Service

	// Domain services and background jobs
	Usage     *usage.Service
	Indexer   *embedding.Indexer
	Searcher  *embedding.Searcher
	Scheduler *usage.ResetScheduler

	// Auth
	JWT            *middleware.JWTValidator
	AuthMiddleware *middleware.AuthMiddleware

	Handlers *Handlers
}

// Handlers groups the HTTP handlers mounted by routes.SetupRoutes
type Handlers struct {
	Health   *handlers.HealthHandler
	AI       *handlers.AIHandler
	Search   *handlers.SearchHandler
	Payments *handlers.PaymentsHandler
	Admin    *handlers.AdminHandler
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := factory.GetDB().PingContext(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := build(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithDB wires dependencies over an already-open pool
func NewDependenciesWithDB(ctx context.Context, cfg *config.Config, db *sql.DB, logger *zap.Logger) (*Dependencies, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	factory := postgres.NewRepositoryFactoryFromDB(postgres.Wrap(db, logger), logger)
	return build(cfg, factory, logger)
}

func build(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	deps.initRepositories()

	if err := deps.initAI(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize AI providers: %w", err)
	}

	if err := deps.initPayments(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize payment providers: %w", err)
	}

	if err := deps.initJobs(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize background jobs: %w", err)
	}

	deps.initAuth(cfg)
	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Profiles = repos.Profiles
	d.Embeddings = repos.Embeddings
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAI(cfg *config.Config) error {
	svc, err := NewAIService(cfg, d.Logger)
	if err != nil {
		return err
	}
	d.AI = svc
	return nil
}

func (d *Dependencies) initPayments(cfg *config.Config) error {
	svc, err := NewPaymentService(cfg, d.Logger)
	if err != nil {
		return err
	}
	d.Payments = svc
	return nil
}

// NewAIService registers every AI backend. Missing keys surface on first call, not here.
func NewAIService(cfg *config.Config, logger *zap.Logger) (*ai.Service, error) {
	backends := []ai.Provider{
		openai.NewBackend(openai.Config{
			APIKey:    cfg.AI.OpenAI.APIKey,
			BaseURL:   cfg.AI.OpenAI.BaseURL,
			ChatModel: cfg.AI.OpenAI.Model,
			Timeout:   cfg.AI.CallTimeout,
		}, logger),
		gemini.NewBackend(gemini.Config{
			APIKey:  cfg.AI.Gemini.APIKey,
			BaseURL: cfg.AI.Gemini.BaseURL,
			Model:   cfg.AI.Gemini.Model,
			Timeout: cfg.AI.CallTimeout,
		}, logger),
		anthropic.NewBackend(anthropic.Config{
			APIKey:  cfg.AI.Anthropic.APIKey,
			BaseURL: cfg.AI.Anthropic.BaseURL,
			Model:   cfg.AI.Anthropic.Model,
			Timeout: cfg.AI.CallTimeout,
		}, logger),
		grok.NewBackend(grok.Config{
			APIKey:  cfg.AI.Grok.APIKey,
			BaseURL: cfg.AI.Grok.BaseURL,
			Model:   cfg.AI.Grok.Model,
			Timeout: cfg.AI.CallTimeout,
		}, logger),
	}

	return ai.NewService(ai.ServiceConfig{
		DefaultProvider:  ai.ProviderName(cfg.AI.Provider),
		FallbackProvider: ai.ProviderName(cfg.AI.FallbackProvider),
		CallTimeout:      cfg.AI.CallTimeout,
	}, backends, logger)
}

// NewPaymentService registers the Stripe and Paystack backends with any plan file overrides applied
func NewPaymentService(cfg *config.Config, logger *zap.Logger) (*payments.Service, error) {
	overrides := payments.PlanOverrides{}
	if cfg.Payments.PlansFile != "" {
		loaded, err := payments.LoadPlanOverrides(cfg.Payments.PlansFile)
		if err != nil {
			return nil, err
		}
		overrides = loaded
		logger.Info("payment plan overrides loaded", zap.String("file", cfg.Payments.PlansFile))
	}

	backends := []payments.Provider{
		stripe.NewBackend(stripe.Config{
			SecretKey:     cfg.Payments.Stripe.SecretKey,
			WebhookSecret: cfg.Payments.Stripe.WebhookSecret,
			APIURL:        cfg.Payments.Stripe.APIURL,
			AppBaseURL:    cfg.AppBaseURL,
			Prices: overrides.Apply(payments.ProviderStripe, map[payments.Tier]string{
				payments.TierPro:  cfg.Payments.Stripe.PricePro,
				payments.TierTeam: cfg.Payments.Stripe.PriceTeam,
			}),
			Timeout: cfg.Payments.CallTimeout,
		}, logger),
		paystack.NewBackend(paystack.Config{
			SecretKey:  cfg.Payments.Paystack.SecretKey,
			BaseURL:    cfg.Payments.Paystack.BaseURL,
			AppBaseURL: cfg.AppBaseURL,
			Plans: overrides.Apply(payments.ProviderPaystack, map[payments.Tier]string{
				payments.TierPro:  cfg.Payments.Paystack.PlanPro,
				payments.TierTeam: cfg.Payments.Paystack.PlanTeam,
			}),
			Timeout: cfg.Payments.CallTimeout,
		}, logger),
	}

	enabled := make([]payments.ProviderName, 0, len(cfg.Payments.EnabledProviders))
	for _, name := range cfg.Payments.EnabledProviders {
		enabled = append(enabled, payments.ProviderName(name))
	}

	return payments.NewService(payments.ServiceConfig{
		DefaultProvider:  payments.ProviderName(cfg.Payments.Provider),
		EnabledProviders: enabled,
		CallTimeout:      cfg.Payments.CallTimeout,
	}, backends, logger)
}

// initJobs starts the embedding workers and the usage reset schedule
func (d *Dependencies) initJobs(cfg *config.Config) error {
	d.Usage = usage.NewService(d.Profiles, d.TxManager, d.Logger)

	indexerCfg := embedding.DefaultConfig()
	indexerCfg.Workers = cfg.Jobs.EmbeddingWorkers
	indexerCfg.QueueSize = cfg.Jobs.EmbeddingQueueSize
	indexerCfg.MaxAttempts = cfg.Jobs.EmbeddingMaxAttempts

	d.Indexer = embedding.NewIndexer(d.AI, d.Embeddings, indexerCfg, d.Logger)
	if err := d.Indexer.Start(); err != nil {
		return err
	}
	d.Searcher = embedding.NewSearcher(d.AI, d.Embeddings, d.Logger)

	scheduler, err := usage.NewResetScheduler(d.Profiles, cfg.Jobs.UsageResetSchedule, d.Logger)
	if err != nil {
		_ = d.Indexer.Close(context.Background())
		return err
	}
	if err := scheduler.Start(); err != nil {
		_ = d.Indexer.Close(context.Background())
		return err
	}
	d.Scheduler = scheduler

	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Session.JWTSecret == "" {
		d.Logger.Warn("session secret not configured, protected endpoints will reject all requests")
		// reject-all keeps protected routes answering 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}

	d.JWT = middleware.NewJWTValidator(cfg.Session.JWTSecret, cfg.Session.JWTIssuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.JWT, d.Logger)
	d.Logger.Info("session token validation enabled", zap.String("issuer", cfg.Session.JWTIssuer))
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	d.Handlers = &Handlers{
		Health:   handlers.NewHealthHandler(d.DB.DB, d, d.Indexer, d.Logger),
		AI:       handlers.NewAIHandler(d.AI, d.Usage, d.Indexer, d.Logger),
		Search:   handlers.NewSearchHandler(d.Searcher, d.Logger),
		Payments: handlers.NewPaymentsHandler(d.Payments, d.Usage, cfg.AppBaseURL, d.Logger),
		Admin:    handlers.NewAdminHandler(d.AI, d.Payments, d.Logger),
	}
}

// ActiveAIProvider implements handlers.ProviderStatus
func (d *Dependencies) ActiveAIProvider() ai.ProviderName {
	return d.AI.GetProvider()
}

// ActivePaymentProvider implements handlers.ProviderStatus
func (d *Dependencies) ActivePaymentProvider() payments.ProviderName {
	return d.Payments.GetProvider()
}

// EnabledPaymentProviders implements handlers.ProviderStatus
func (d *Dependencies) EnabledPaymentProviders() []payments.ProviderName {
	return d.Payments.GetEnabledProviders()
}

// rejectAllValidator rejects all tokens (used when no session secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close drains queued embeddings, stops the scheduler and closes the database
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Indexer != nil {
		if err := d.Indexer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain embedding queue: %w", err))
		} else {
			d.Logger.Info("embedding queue drained")
		}
	}

	if d.Scheduler != nil {
		d.Scheduler.Stop(ctx)
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
