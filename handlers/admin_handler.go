package handlers

import (
	"net/http"
	"strings"

	"github.com/amebo/notes-backend/middleware"
	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// AIProviderRegistry exposes backend selection on the AI facade
type AIProviderRegistry interface {
	SetProvider(name ai.ProviderName) error
	GetProvider() ai.ProviderName
	Describe() []ai.ProviderInfo
}

// PaymentProviderRegistry exposes backend selection on the payments facade
type PaymentProviderRegistry interface {
	SetProvider(name payments.ProviderName) error
	EnableProvider(name payments.ProviderName) error
	DisableProvider(name payments.ProviderName) error
	GetProvider() payments.ProviderName
	GetEnabledProviders() []payments.ProviderName
	GetAvailableProviders() []payments.ProviderName
}

// SetProviderRequest is the body of the provider switch endpoints
type SetProviderRequest struct {
	Name string `json:"name" validate:"required"`
}

// PaymentProvidersStatus describes the payment backends
type PaymentProvidersStatus struct {
	Active    payments.ProviderName   `json:"active"`
	Enabled   []payments.ProviderName `json:"enabled"`
	Available []payments.ProviderName `json:"available"`
}

// ProvidersResponse is returned by GET /admin/providers
type ProvidersResponse struct {
	AI       []ai.ProviderInfo      `json:"ai"`
	Payments PaymentProvidersStatus `json:"payments"`
}

// AdminHandler handles runtime provider management
type AdminHandler struct {
	ai       AIProviderRegistry
	payments PaymentProviderRegistry
	logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(aiRegistry AIProviderRegistry, paymentRegistry PaymentProviderRegistry, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		ai:       aiRegistry,
		payments: paymentRegistry,
		logger:   logger,
	}
}

// HandleListProviders handles GET /admin/providers
func (h *AdminHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.snapshot())
}

// HandleSetAIProvider handles PUT /admin/providers/ai
func (h *AdminHandler) HandleSetAIProvider(w http.ResponseWriter, r *http.Request) {
	name, ok := h.decodeName(w, r)
	if !ok {
		return
	}

	if err := h.ai.SetProvider(ai.ProviderName(name)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.audit(r, "ai provider switched", name)
	_ = utils.WriteOK(w, h.snapshot())
}

// HandleSetPaymentProvider handles PUT /admin/providers/payments
func (h *AdminHandler) HandleSetPaymentProvider(w http.ResponseWriter, r *http.Request) {
	name, ok := h.decodeName(w, r)
	if !ok {
		return
	}

	if err := h.payments.SetProvider(payments.ProviderName(name)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.audit(r, "payment provider switched", name)
	_ = utils.WriteOK(w, h.snapshot())
}

// HandleEnablePaymentProvider handles POST /admin/providers/payments/{name}/enable
func (h *AdminHandler) HandleEnablePaymentProvider(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "name"))
	if err := h.payments.EnableProvider(payments.ProviderName(name)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.audit(r, "payment provider enabled", name)
	_ = utils.WriteOK(w, h.snapshot())
}

// HandleDisablePaymentProvider handles POST /admin/providers/payments/{name}/disable
func (h *AdminHandler) HandleDisablePaymentProvider(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "name"))
	if err := h.payments.DisableProvider(payments.ProviderName(name)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.audit(r, "payment provider disabled", name)
	_ = utils.WriteOK(w, h.snapshot())
}

func (h *AdminHandler) snapshot() ProvidersResponse {
	return ProvidersResponse{
		AI: h.ai.Describe(),
		Payments: PaymentProvidersStatus{
			Active:    h.payments.GetProvider(),
			Enabled:   h.payments.GetEnabledProviders(),
			Available: h.payments.GetAvailableProviders(),
		},
	}
}

func (h *AdminHandler) decodeName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req SetProviderRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return "", false
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(req.Name)), true
}

func (h *AdminHandler) audit(r *http.Request, msg, provider string) {
	fields := []zap.Field{
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("provider", provider),
	}
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		fields = append(fields, zap.String("admin_id", claims.UserID.String()))
	}
	h.logger.Info(msg, fields...)
}
