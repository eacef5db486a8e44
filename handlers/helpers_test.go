package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amebo/notes-backend/middleware"
	"github.com/amebo/notes-backend/models"
	"github.com/amebo/notes-backend/services/ai"
	"github.com/amebo/notes-backend/services/embedding"
	"github.com/amebo/notes-backend/services/payments"
	"github.com/amebo/notes-backend/services/usage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newRequest builds a request with an optional JSON body and authenticated caller
func newRequest(t *testing.T, method, target string, body interface{}, claims *middleware.Claims) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		ctx := middleware.WithClaims(req.Context(), claims)
		ctx = middleware.WithUserID(ctx, claims.UserID)
		req = req.WithContext(ctx)
	}
	return req
}

func newMultipartRequest(t *testing.T, body io.Reader, contentType string, claims *middleware.Claims) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	if claims != nil {
		ctx := middleware.WithClaims(req.Context(), claims)
		req = req.WithContext(middleware.WithUserID(ctx, claims.UserID))
	}
	return req
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func userClaims(role string) *middleware.Claims {
	id := uuid.New()
	return &middleware.Claims{
		Sub:    id.String(),
		UserID: id,
		Email:  "reader@example.com",
		Role:   role,
	}
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

type MockAIService struct {
	mock.Mock
}

func (m *MockAIService) Summarize(ctx context.Context, content string) (*ai.SummaryResult, error) {
	args := m.Called(ctx, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.SummaryResult), args.Error(1)
}

func (m *MockAIService) Organize(ctx context.Context, content string) (*ai.OrganizationResult, error) {
	args := m.Called(ctx, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.OrganizationResult), args.Error(1)
}

func (m *MockAIService) Chat(ctx context.Context, messages []ai.ChatMessage, notesContext string) (string, error) {
	args := m.Called(ctx, messages, notesContext)
	return args.String(0), args.Error(1)
}

func (m *MockAIService) Transcribe(ctx context.Context, audio []byte, mimeType string) (*ai.TranscriptionResult, error) {
	args := m.Called(ctx, audio, mimeType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ai.TranscriptionResult), args.Error(1)
}

type MockUsageService struct {
	mock.Mock
}

func (m *MockUsageService) GetStatus(ctx context.Context, userID uuid.UUID) (*usage.Status, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usage.Status), args.Error(1)
}

func (m *MockUsageService) CanSummarize(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageService) CanTranscribe(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageService) RecordAIUsage(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

type MockEmbeddingQueue struct {
	mock.Mock
}

func (m *MockEmbeddingQueue) Submit(job embedding.Job) (uuid.UUID, error) {
	args := m.Called(job)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type MockNoteSearcher struct {
	mock.Mock
}

func (m *MockNoteSearcher) Search(ctx context.Context, userID uuid.UUID, query string, threshold float64, count int) ([]*models.NoteMatch, error) {
	args := m.Called(ctx, userID, query, threshold, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.NoteMatch), args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreateCheckout(ctx context.Context, plan payments.Tier, userID, email string, override payments.ProviderName) (*payments.CheckoutSession, error) {
	args := m.Called(ctx, plan, userID, email, override)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.CheckoutSession), args.Error(1)
}

func (m *MockPaymentService) HandleWebhook(ctx context.Context, provider payments.ProviderName, payload []byte, signature string) (*payments.WebhookResult, error) {
	args := m.Called(ctx, provider, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.WebhookResult), args.Error(1)
}

func (m *MockPaymentService) GetCustomerPortalURL(ctx context.Context, customerID string, override payments.ProviderName) (string, error) {
	args := m.Called(ctx, customerID, override)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentService) CancelSubscription(ctx context.Context, subscriptionID string, override payments.ProviderName) error {
	return m.Called(ctx, subscriptionID, override).Error(0)
}

func (m *MockPaymentService) GetSubscription(ctx context.Context, subscriptionID string, override payments.ProviderName) (*payments.Subscription, error) {
	args := m.Called(ctx, subscriptionID, override)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Subscription), args.Error(1)
}

func (m *MockPaymentService) VerifyCallback(ctx context.Context, provider payments.ProviderName, reference string) (*payments.WebhookResult, error) {
	args := m.Called(ctx, provider, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.WebhookResult), args.Error(1)
}

type MockSubscriptionStore struct {
	mock.Mock
}

func (m *MockSubscriptionStore) ApplyWebhook(ctx context.Context, provider payments.ProviderName, result *payments.WebhookResult) error {
	return m.Called(ctx, provider, result).Error(0)
}

func (m *MockSubscriptionStore) OwnsSubscription(ctx context.Context, userID uuid.UUID, subscriptionID string) (bool, error) {
	args := m.Called(ctx, userID, subscriptionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubscriptionStore) BillingAccount(ctx context.Context, userID uuid.UUID) (string, payments.ProviderName, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Get(1).(payments.ProviderName), args.Error(2)
}
