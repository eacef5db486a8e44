package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/services/providers"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL  = "https://api.paystack.co"
	DefaultPlanPro  = "PLN_pro_monthly"
	DefaultPlanTeam = "PLN_team_monthly"

	envSecretKey = "PAYSTACK_SECRET_KEY"
)

// DefaultPlans maps paid tiers to plan codes when none are configured
func DefaultPlans() map[payments.Tier]string {
	return map[payments.Tier]string{
		payments.TierPro:  DefaultPlanPro,
		payments.TierTeam: DefaultPlanTeam,
	}
}

// Config configures the Paystack backend
type Config struct {
	SecretKey  string
	BaseURL    string
	AppBaseURL string
	Plans      map[payments.Tier]string
	Timeout    time.Duration
}

// Backend implements payments.Provider and payments.CallbackVerifier over the Paystack REST API
type Backend struct {
	config     Config
	catalog    *payments.PlanCatalog
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBackend creates the Paystack backend
func NewBackend(cfg Config, logger *zap.Logger) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")
	if cfg.Plans == nil {
		cfg.Plans = DefaultPlans()
	}

	return &Backend{
		config:     cfg,
		catalog:    payments.NewPlanCatalog(cfg.Plans),
		httpClient: providers.NewHTTPClient(cfg.Timeout),
		logger:     logger.With(zap.String("provider", string(payments.ProviderPaystack))),
	}
}

// Name returns the provider name
func (b *Backend) Name() payments.ProviderName {
	return payments.ProviderPaystack
}

// CreateCheckout initializes a transaction on the tier's plan; the reference is the session ID
func (b *Backend) CreateCheckout(ctx context.Context, plan payments.Tier, userID, email string) (*payments.CheckoutSession, error) {
	planCode, ok := b.catalog.Code(plan)
	if !ok {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeInvalidPlan,
			"invalid plan: "+string(plan), 0, nil)
	}

	body := initializeRequest{
		Email:       email,
		Plan:        planCode,
		CallbackURL: b.config.AppBaseURL + "/api/v1/payments/paystack/callback",
		Metadata:    checkoutMetadata{UserID: userID, Plan: string(plan)},
	}

	var data initializeData
	if _, err := b.request(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, b.wrap("failed to create checkout session", err)
	}

	b.logger.Info("transaction initialized",
		zap.String("reference", data.Reference),
		zap.String("plan", string(plan)),
	)

	return &payments.CheckoutSession{
		ID:       data.Reference,
		URL:      data.AuthorizationURL,
		Provider: b.Name(),
	}, nil
}

// HandleWebhook checks the HMAC-SHA512 of the raw payload before decoding it
func (b *Backend) HandleWebhook(ctx context.Context, payload []byte, signature string) (*payments.WebhookResult, error) {
	if b.config.SecretKey == "" {
		return nil, providers.MissingCredential(string(b.Name()), envSecretKey)
	}
	if !b.validSignature(payload, signature) {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeInvalidSignature,
			"webhook signature verification failed", http.StatusBadRequest, providers.ErrInvalidSignature)
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeParseError,
			"failed to parse webhook payload", 0, err)
	}

	switch event.Event {
	case "subscription.create", "charge.success":
		metadata := event.Data.metadata()
		tier := payments.Tier(metadata.Plan)
		if tier == "" && event.Data.Plan.PlanCode != "" {
			tier = b.catalog.Tier(event.Data.Plan.PlanCode)
		}
		return &payments.WebhookResult{
			Event:          payments.EventCheckoutCompleted,
			UserID:         metadata.UserID,
			SubscriptionID: event.Data.SubscriptionCode,
			CustomerID:     event.Data.Customer.CustomerCode,
			Tier:           tier,
			Success:        true,
		}, nil

	case "subscription.disable":
		return &payments.WebhookResult{
			Event:          payments.EventSubscriptionCanceled,
			SubscriptionID: event.Data.SubscriptionCode,
			Success:        true,
		}, nil

	default:
		b.logger.Debug("unhandled paystack event", zap.String("event", event.Event))
		return &payments.WebhookResult{Event: event.Event, Success: true}, nil
	}
}

// GetCustomerPortalURL returns the app's own billing page; Paystack has no hosted portal
func (b *Backend) GetCustomerPortalURL(ctx context.Context, customerID string) (string, error) {
	return b.config.AppBaseURL + "/settings/billing", nil
}

// CancelSubscription looks up the subscription's email token and disables it
func (b *Backend) CancelSubscription(ctx context.Context, subscriptionID string) error {
	var sub subscriptionData
	if _, err := b.request(ctx, http.MethodGet, "/subscription/"+url.PathEscape(subscriptionID), nil, &sub); err != nil {
		return b.wrap("failed to cancel subscription", err)
	}

	body := map[string]string{"code": subscriptionID, "token": sub.EmailToken}
	if _, err := b.request(ctx, http.MethodPost, "/subscription/disable", body, nil); err != nil {
		return b.wrap("failed to cancel subscription", err)
	}

	b.logger.Info("subscription disabled", zap.String("subscription_code", subscriptionID))
	return nil
}

// GetSubscription fetches a subscription. The period end is the next payment
// date and the start is one month before it.
func (b *Backend) GetSubscription(ctx context.Context, subscriptionID string) (*payments.Subscription, error) {
	var sub subscriptionData
	status, err := b.request(ctx, http.MethodGet, "/subscription/"+url.PathEscape(subscriptionID), nil, &sub)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, nil
		}
		return nil, b.wrap("failed to get subscription", err)
	}

	result := &payments.Subscription{
		ID:         sub.SubscriptionCode,
		Provider:   b.Name(),
		ProviderID: sub.SubscriptionCode,
		Tier:       b.catalog.Tier(sub.Plan.PlanCode),
	}
	result.Status, result.CancelAtPeriodEnd = mapStatus(sub.Status)

	if sub.NextPaymentDate != "" {
		end, err := time.Parse(time.RFC3339, sub.NextPaymentDate)
		if err != nil {
			return nil, providers.NewProviderError(string(b.Name()), providers.CodeParseError,
				"invalid next_payment_date", 0, err)
		}
		result.CurrentPeriodEnd = end.UTC()
		result.CurrentPeriodStart = end.UTC().AddDate(0, -1, 0)
	}

	return result, nil
}

// VerifyCallback confirms the transaction behind a checkout redirect
func (b *Backend) VerifyCallback(ctx context.Context, reference string) (*payments.WebhookResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, providers.NewProviderError(string(b.Name()), providers.CodeRequestError, "missing transaction reference", 0, nil)
	}

	var tx transactionData
	if _, err := b.request(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &tx); err != nil {
		return nil, b.wrap("failed to verify transaction", err)
	}

	if tx.Status != "success" {
		b.logger.Info("transaction not successful",
			zap.String("reference", reference),
			zap.String("status", tx.Status),
		)
		return &payments.WebhookResult{Event: payments.EventCheckoutFailed, Success: false}, nil
	}

	metadata := tx.metadata()
	return &payments.WebhookResult{
		Event:          payments.EventCheckoutCompleted,
		UserID:         metadata.UserID,
		SubscriptionID: tx.SubscriptionCode,
		CustomerID:     tx.Customer.CustomerCode,
		Tier:           payments.Tier(metadata.Plan),
		Success:        true,
	}, nil
}

// request performs one API call and unwraps the {status, message, data} envelope.
// The HTTP status is returned even on failure so callers can detect 404s.
func (b *Backend) request(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	if b.config.SecretKey == "" {
		return 0, providers.MissingCredential(string(b.Name()), envSecretKey)
	}

	headers := map[string]string{"Authorization": "Bearer " + b.config.SecretKey}
	resp, err := providers.SendJSON(ctx, b.httpClient, method, b.config.BaseURL+path, headers, in)
	if err != nil {
		return 0, providers.NewProviderError(string(b.Name()), providers.CodeHTTPError, "request failed", 0, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return resp.StatusCode, providers.NewProviderError(string(b.Name()), providers.CodeParseError,
			fmt.Sprintf("unexpected response (status %d)", resp.StatusCode), resp.StatusCode, err)
	}
	if !resp.OK() || !env.Status {
		message := env.Message
		if message == "" {
			message = "Paystack API error"
		}
		return resp.StatusCode, providers.NewProviderError(string(b.Name()), providers.CodeVendorError,
			message, resp.StatusCode, nil)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, providers.NewProviderError(string(b.Name()), providers.CodeParseError,
				"failed to decode response data", resp.StatusCode, err)
		}
	}
	return resp.StatusCode, nil
}

func (b *Backend) validSignature(payload []byte, signature string) bool {
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(given) == 0 {
		return false
	}
	mac := hmac.New(sha512.New, []byte(b.config.SecretKey))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), given)
}

func (b *Backend) wrap(message string, err error) error {
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) && provErr.Code == providers.CodeMissingCredentials {
		return err
	}
	return providers.NewProviderError(string(b.Name()), providers.CodeVendorError, message, statusOf(err), err)
}

func statusOf(err error) int {
	if provErr, ok := providers.AsProviderError(err); ok {
		return provErr.StatusCode
	}
	return 0
}

func mapStatus(status string) (payments.Status, bool) {
	switch status {
	case "active":
		return payments.StatusActive, false
	case "attention":
		return payments.StatusPastDue, false
	case "non-renewing":
		return payments.StatusActive, true
	default:
		return payments.StatusCanceled, false
	}
}
