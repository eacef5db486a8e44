package handlers

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/amebo/notes-backend/middleware"
	"github.com/amebo/notes-backend/services"
	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWebhookBytes = 1 << 20

// PaymentService is the payments facade as used by the HTTP layer
type PaymentService interface {
	CreateCheckout(ctx context.Context, plan payments.Tier, userID, email string, override payments.ProviderName) (*payments.CheckoutSession, error)
	HandleWebhook(ctx context.Context, provider payments.ProviderName, payload []byte, signature string) (*payments.WebhookResult, error)
	GetCustomerPortalURL(ctx context.Context, customerID string, override payments.ProviderName) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string, override payments.ProviderName) error
	GetSubscription(ctx context.Context, subscriptionID string, override payments.ProviderName) (*payments.Subscription, error)
	VerifyCallback(ctx context.Context, provider payments.ProviderName, reference string) (*payments.WebhookResult, error)
}

// SubscriptionStore applies payment outcomes to stored profiles
type SubscriptionStore interface {
	ApplyWebhook(ctx context.Context, provider payments.ProviderName, result *payments.WebhookResult) error
	OwnsSubscription(ctx context.Context, userID uuid.UUID, subscriptionID string) (bool, error)
	BillingAccount(ctx context.Context, userID uuid.UUID) (string, payments.ProviderName, error)
}

// CheckoutRequest is the body of POST /payments/checkout
type CheckoutRequest struct {
	Plan     string `json:"plan" validate:"required,oneof=pro team"`
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=stripe paystack"`
}

// URLResponse carries a redirect target for the browser
type URLResponse struct {
	URL string `json:"url"`
}

// PaymentsHandler handles checkout, billing portal, subscription, webhook and callback routes
type PaymentsHandler struct {
	payments   PaymentService
	store      SubscriptionStore
	appBaseURL string
	logger     *zap.Logger
}

// NewPaymentsHandler creates a new PaymentsHandler
func NewPaymentsHandler(paymentService PaymentService, store SubscriptionStore, appBaseURL string, logger *zap.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		payments:   paymentService,
		store:      store,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		logger:     logger,
	}
}

// HandleCheckout handles POST /payments/checkout
func (h *PaymentsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleServiceError(w, services.ErrInvalidPlan, h.logger)
		return
	}

	email := ""
	if claims := middleware.GetClaimsFromContext(ctx); claims != nil {
		email = claims.Email
	}

	session, err := h.payments.CreateCheckout(ctx, payments.Tier(req.Plan), userID.String(), email, payments.ProviderName(req.Provider))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("checkout created",
		zap.String("request_id", chimw.GetReqID(ctx)),
		zap.String("user_id", userID.String()),
		zap.String("plan", req.Plan),
		zap.String("provider", string(session.Provider)))

	_ = utils.WriteOK(w, session)
}

// HandlePortal handles POST /payments/portal. The customer is the one
// recorded on the caller's profile at checkout; the request body is ignored.
func (h *PaymentsHandler) HandlePortal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	customerID, provider, err := h.store.BillingAccount(ctx, userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	portalURL, err := h.payments.GetCustomerPortalURL(ctx, customerID, provider)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, URLResponse{URL: portalURL})
}

// HandleGetSubscription handles GET /payments/subscriptions/{id}
func (h *PaymentsHandler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	subscriptionID, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	sub, err := h.payments.GetSubscription(r.Context(), subscriptionID, providerOverride(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if sub == nil {
		HandleServiceError(w, services.ErrSubscriptionNotFound, h.logger)
		return
	}

	_ = utils.WriteOK(w, sub)
}

// HandleCancelSubscription handles POST /payments/subscriptions/{id}/cancel
func (h *PaymentsHandler) HandleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	subscriptionID, ok := h.ownedSubscription(w, r)
	if !ok {
		return
	}

	if err := h.payments.CancelSubscription(r.Context(), subscriptionID, providerOverride(r)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("subscription cancel requested",
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("subscription_id", subscriptionID))

	_ = utils.WriteOK(w, map[string]string{"status": "canceled", "subscriptionId": subscriptionID})
}

// HandleWebhook handles POST /webhooks/{provider}. The body is read raw so
// the backend can verify the signature over the exact bytes sent.
func (h *PaymentsHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := payments.ProviderName(strings.ToLower(chi.URLParam(r, "provider")))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Unreadable webhook body", nil)
		return
	}

	result, err := h.payments.HandleWebhook(ctx, provider, payload, webhookSignature(r, provider))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if result == nil {
		result = &payments.WebhookResult{}
	}

	if err := h.store.ApplyWebhook(ctx, provider, result); err != nil {
		// only storage failures are worth a vendor retry
		if services.IsInternalError(err) {
			HandleServiceError(w, err, h.logger)
			return
		}
		h.logger.Warn("webhook not applied",
			zap.String("provider", string(provider)),
			zap.String("event", result.Event),
			zap.Error(err))
	}

	_ = utils.WriteOK(w, map[string]interface{}{"received": true, "event": result.Event})
}

// HandlePaystackCallback handles GET /payments/paystack/callback?reference=
// and always ends in a redirect back to the dashboard
func (h *PaymentsHandler) HandlePaystackCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		h.redirectToDashboard(w, r, "error")
		return
	}

	result, err := h.payments.VerifyCallback(ctx, payments.ProviderPaystack, reference)
	if err != nil {
		h.logger.Error("paystack callback verification failed",
			zap.String("reference", reference),
			zap.Error(err))
		h.redirectToDashboard(w, r, "error")
		return
	}
	if result == nil || !result.Success {
		h.redirectToDashboard(w, r, "failed")
		return
	}

	if err := h.store.ApplyWebhook(ctx, payments.ProviderPaystack, result); err != nil {
		// payment is verified; the charge.success webhook will retry the update
		h.logger.Error("failed to apply verified paystack payment",
			zap.String("reference", reference),
			zap.String("user_id", result.UserID),
			zap.Error(err))
	}

	h.redirectToDashboard(w, r, "success")
}

func (h *PaymentsHandler) redirectToDashboard(w http.ResponseWriter, r *http.Request, outcome string) {
	target := h.appBaseURL + "/dashboard?payment=" + url.QueryEscape(outcome)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// ownedSubscription reads {id} and checks it belongs to the caller; admins may act on any
func (h *PaymentsHandler) ownedSubscription(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return "", false
	}

	subscriptionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if subscriptionID == "" {
		_ = utils.WriteBadRequest(w, "subscription id is required", nil)
		return "", false
	}

	if middleware.GetClaimsFromContext(r.Context()).IsAdmin() {
		return subscriptionID, true
	}

	owns, err := h.store.OwnsSubscription(r.Context(), userID, subscriptionID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return "", false
	}
	if !owns {
		HandleServiceError(w, services.ErrSubscriptionNotFound, h.logger)
		return "", false
	}
	return subscriptionID, true
}

func providerOverride(r *http.Request) payments.ProviderName {
	return payments.ProviderName(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("provider"))))
}

func webhookSignature(r *http.Request, provider payments.ProviderName) string {
	switch provider {
	case payments.ProviderStripe:
		return r.Header.Get("Stripe-Signature")
	case payments.ProviderPaystack:
		return r.Header.Get("X-Paystack-Signature")
	default:
		return firstNonEmpty(r.Header.Get("Stripe-Signature"), r.Header.Get("X-Paystack-Signature"))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
