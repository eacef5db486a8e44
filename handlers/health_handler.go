package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/embedding"
	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/utils"
	"go.uber.org/zap"
)

// ProviderStatus reports which backends currently serve traffic
type ProviderStatus interface {
	ActiveAIProvider() ai.ProviderName
	ActivePaymentProvider() payments.ProviderName
	EnabledPaymentProviders() []payments.ProviderName
}

// IndexerStats reports the embedding queue state
type IndexerStats interface {
	GetStats() embedding.Stats
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Providers *ProvidersSummary `json:"providers,omitempty"`
	Indexer   *embedding.Stats  `json:"indexer,omitempty"`
}

// ProvidersSummary is the provider section of the readiness response
type ProvidersSummary struct {
	AI              ai.ProviderName         `json:"ai"`
	Payments        payments.ProviderName   `json:"payments"`
	EnabledPayments []payments.ProviderName `json:"enabledPayments"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db        *sql.DB
	providers ProviderStatus
	indexer   IndexerStats
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. providers and indexer may be nil.
func NewHealthHandler(db *sql.DB, providers ProviderStatus, indexer IndexerStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		providers: providers,
		indexer:   indexer,
		logger:    logger,
	}
}

// HandleHealth handles GET /healthz
// Liveness only; returns 200 while the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{Data: response})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	response := HealthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if h.providers != nil {
		response.Providers = &ProvidersSummary{
			AI:              h.providers.ActiveAIProvider(),
			Payments:        h.providers.ActivePaymentProvider(),
			EnabledPayments: h.providers.EnabledPaymentProviders(),
		}
	}

	if h.indexer != nil {
		stats := h.indexer.GetStats()
		response.Indexer = &stats
		if stats.IsRunning {
			checks["indexer"] = "healthy"
		} else {
			checks["indexer"] = "stopped"
			allHealthy = false
		}
	}

	response.Status = "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		response.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}

	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
