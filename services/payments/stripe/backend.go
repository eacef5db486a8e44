package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/services/providers"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	DefaultPricePro  = "price_pro_monthly"
	DefaultPriceTeam = "price_team_monthly"

	envSecretKey     = "STRIPE_SECRET_KEY"
	envWebhookSecret = "STRIPE_WEBHOOK_SECRET"
)

// DefaultPrices maps paid tiers to price IDs when none are configured
func DefaultPrices() map[payments.Tier]string {
	return map[payments.Tier]string{
		payments.TierPro:  DefaultPricePro,
		payments.TierTeam: DefaultPriceTeam,
	}
}

// Config configures the Stripe backend
type Config struct {
	SecretKey     string
	WebhookSecret string

	// APIURL overrides the Stripe API host, mainly for tests and stripe-mock
	APIURL string

	// AppBaseURL is where checkout and portal sessions send the user back to
	AppBaseURL string

	Prices  map[payments.Tier]string
	Timeout time.Duration
}

// Backend implements payments.Provider with the Stripe SDK
type Backend struct {
	api     *client.API
	config  Config
	catalog *payments.PlanCatalog
	logger  *zap.Logger
}

// NewBackend creates the Stripe backend. SDK retries are disabled so each
// facade call maps to exactly one vendor request.
func NewBackend(cfg Config, logger *zap.Logger) *Backend {
	if cfg.Prices == nil {
		cfg.Prices = DefaultPrices()
	}
	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")

	logger = logger.With(zap.String("provider", string(payments.ProviderStripe)))

	backendConfig := &stripego.BackendConfig{
		HTTPClient:        providers.NewHTTPClient(cfg.Timeout),
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripego.Int64(0),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripego.String(strings.TrimRight(cfg.APIURL, "/"))
	}

	backends := &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendConfig),
		Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, backendConfig),
		Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, backendConfig),
	}

	return &Backend{
		api:     client.New(cfg.SecretKey, backends),
		config:  cfg,
		catalog: payments.NewPlanCatalog(cfg.Prices),
		logger:  logger,
	}
}

// Name returns the provider name
func (b *Backend) Name() payments.ProviderName {
	return payments.ProviderStripe
}

// CreateCheckout opens a subscription-mode Checkout Session tagged with the user and plan
func (b *Backend) CreateCheckout(ctx context.Context, plan payments.Tier, userID, email string) (*payments.CheckoutSession, error) {
	if err := b.checkSecretKey(); err != nil {
		return nil, err
	}

	priceID, ok := b.catalog.Code(plan)
	if !ok {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeInvalidPlan,
			"invalid plan: "+string(plan), 0, nil)
	}

	params := &stripego.CheckoutSessionParams{
		CustomerEmail:      stripego.String(email),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{Price: stripego.String(priceID), Quantity: stripego.Int64(1)},
		},
		Mode:       stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		SuccessURL: stripego.String(b.config.AppBaseURL + "/dashboard?payment=success"),
		CancelURL:  stripego.String(b.config.AppBaseURL + "/pricing?payment=canceled"),
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	params.AddMetadata("plan", string(plan))

	session, err := b.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, b.wrapError("failed to create checkout session", err)
	}

	b.logger.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("plan", string(plan)),
	)

	return &payments.CheckoutSession{
		ID:       session.ID,
		URL:      session.URL,
		Provider: b.Name(),
	}, nil
}

// HandleWebhook verifies the Stripe-Signature header and normalizes the event
func (b *Backend) HandleWebhook(ctx context.Context, payload []byte, signature string) (*payments.WebhookResult, error) {
	if b.config.WebhookSecret == "" {
		return nil, providers.MissingCredential(string(b.Name()), envWebhookSecret)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, b.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return nil, providers.NewProviderError(string(b.Name()), providers.CodeInvalidSignature,
				"webhook signature verification failed", http.StatusBadRequest,
				errors.Join(providers.ErrInvalidSignature, err))
		}
		return nil, b.parseError(err)
	}
	if event.Data == nil {
		return nil, b.parseError(errors.New("event has no data"))
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripego.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, b.parseError(err)
		}
		result := &payments.WebhookResult{
			Event:   payments.EventCheckoutCompleted,
			UserID:  session.Metadata["userId"],
			Tier:    payments.Tier(session.Metadata["plan"]),
			Success: true,
		}
		if session.Subscription != nil {
			result.SubscriptionID = session.Subscription.ID
		}
		if session.Customer != nil {
			result.CustomerID = session.Customer.ID
		}
		return result, nil

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, b.parseError(err)
		}
		name := payments.EventSubscriptionUpdated
		if event.Type == "customer.subscription.deleted" {
			name = payments.EventSubscriptionCanceled
		}
		return &payments.WebhookResult{
			Event:          name,
			SubscriptionID: sub.ID,
			Tier:           b.subscriptionTier(&sub),
			Success:        true,
		}, nil

	default:
		b.logger.Debug("unhandled stripe event", zap.String("type", string(event.Type)))
		return &payments.WebhookResult{Event: string(event.Type), Success: true}, nil
	}
}

// GetCustomerPortalURL opens a billing portal session returning to the billing settings page
func (b *Backend) GetCustomerPortalURL(ctx context.Context, customerID string) (string, error) {
	if err := b.checkSecretKey(); err != nil {
		return "", err
	}

	params := &stripego.BillingPortalSessionParams{
		Customer:  stripego.String(customerID),
		ReturnURL: stripego.String(b.config.AppBaseURL + "/settings/billing"),
	}
	params.Context = ctx

	session, err := b.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", b.wrapError("failed to create customer portal", err)
	}
	return session.URL, nil
}

// CancelSubscription schedules cancellation at the end of the current period
func (b *Backend) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if err := b.checkSecretKey(); err != nil {
		return err
	}

	params := &stripego.SubscriptionParams{CancelAtPeriodEnd: stripego.Bool(true)}
	params.Context = ctx

	if _, err := b.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return b.wrapError("failed to cancel subscription", err)
	}

	b.logger.Info("subscription set to cancel at period end", zap.String("subscription_id", subscriptionID))
	return nil
}

// GetSubscription retrieves a subscription; a missing one returns nil, nil
func (b *Backend) GetSubscription(ctx context.Context, subscriptionID string) (*payments.Subscription, error) {
	if err := b.checkSecretKey(); err != nil {
		return nil, err
	}

	params := &stripego.SubscriptionParams{}
	params.Context = ctx

	sub, err := b.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, b.wrapError("failed to get subscription", err)
	}

	return &payments.Subscription{
		ID:                 sub.ID,
		UserID:             sub.Metadata["userId"],
		Provider:           b.Name(),
		ProviderID:         sub.ID,
		Tier:               b.subscriptionTier(sub),
		Status:             mapStatus(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}, nil
}

func (b *Backend) subscriptionTier(sub *stripego.Subscription) payments.Tier {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return payments.TierFree
	}
	return b.catalog.Tier(sub.Items.Data[0].Price.ID)
}

func (b *Backend) checkSecretKey() error {
	if b.config.SecretKey == "" {
		return providers.MissingCredential(string(b.Name()), envSecretKey)
	}
	return nil
}

func (b *Backend) wrapError(message string, err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		msg := message
		if stripeErr.Msg != "" {
			msg = message + ": " + stripeErr.Msg
		}
		return providers.NewProviderError(string(b.Name()), providers.CodeVendorError, msg, stripeErr.HTTPStatusCode, err)
	}
	return providers.NewProviderError(string(b.Name()), providers.CodeHTTPError, message, 0, err)
}

func (b *Backend) parseError(err error) error {
	return providers.NewProviderError(string(b.Name()), providers.CodeParseError, "failed to parse webhook payload", 0, err)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func mapStatus(status stripego.SubscriptionStatus) payments.Status {
	switch status {
	case stripego.SubscriptionStatusActive:
		return payments.StatusActive
	case stripego.SubscriptionStatusTrialing:
		return payments.StatusTrialing
	case stripego.SubscriptionStatusPastDue:
		return payments.StatusPastDue
	default:
		return payments.StatusCanceled
	}
}
