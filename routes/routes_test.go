package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amebo/notes-backend/app"
	"github.com/amebo/notes-backend/config"
	"github.com/amebo/notes-backend/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Dependencies) {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)

	deps, err := app.NewDependenciesWithDB(context.Background(), testConfig(), db, zaptest.NewLogger(t))
	require.NoError(t, err)

	ts := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = deps.Close(ctx)
	})
	return ts, deps
}

func bearer(t *testing.T, deps *app.Dependencies, role string) string {
	t.Helper()
	token, err := deps.JWT.IssueToken(uuid.New(), "reader@example.com", role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(t *testing.T, client *http.Client, method, url, auth string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.DefaultClient, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["data"].(map[string]interface{})["status"])
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	testCases := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/ai/summarize"},
		{"POST", "/api/v1/ai/organize"},
		{"POST", "/api/v1/ai/transcribe"},
		{"POST", "/api/v1/ai/chat"},
		{"POST", "/api/v1/ai/embeddings"},
		{"GET", "/api/v1/search?q=milk"},
		{"GET", "/api/v1/usage"},
		{"POST", "/api/v1/payments/checkout"},
		{"POST", "/api/v1/payments/portal"},
		{"GET", "/api/v1/payments/subscriptions/sub_1"},
		{"POST", "/api/v1/payments/subscriptions/sub_1/cancel"},
		{"GET", "/api/v1/admin/providers"},
		{"PUT", "/api/v1/admin/providers/ai"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := do(t, http.DefaultClient, tc.method, ts.URL+tc.path, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	ts, deps := newTestServer(t)

	resp := do(t, http.DefaultClient, http.MethodGet, ts.URL+"/api/v1/admin/providers", bearer(t, deps, middleware.RoleUser))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.DefaultClient, http.MethodGet, ts.URL+"/api/v1/admin/providers", bearer(t, deps, middleware.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body["ai"], 4)
	assert.Equal(t, "paystack", body["payments"].(map[string]interface{})["active"])
}

func TestAuthenticatedSearchWithEmptyQuery(t *testing.T) {
	ts, deps := newTestServer(t)

	resp := do(t, http.DefaultClient, http.MethodGet, ts.URL+"/api/v1/search?q=", bearer(t, deps, ""))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []interface{}{}, body["results"])
}

func TestVendorRoutesArePublic(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("webhook for an unknown provider", func(t *testing.T) {
		resp := do(t, http.DefaultClient, http.MethodPost, ts.URL+"/api/v1/webhooks/paypal", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("paystack callback without reference", func(t *testing.T) {
		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}
		resp := do(t, client, http.MethodGet, ts.URL+"/api/v1/payments/paystack/callback", "")
		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000/dashboard?payment=error", resp.Header.Get("Location"))
	})
}

func TestUnknownRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.DefaultClient, http.MethodGet, ts.URL+"/api/v1/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.DefaultClient, http.MethodDelete, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORSMiddleware(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/ai/chat", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		AppBaseURL:  "http://localhost:3000",
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Session: config.SessionConfig{
			JWTSecret: "routes-test-secret",
			JWTIssuer: "amebo",
		},
		AI: config.AIConfig{
			Provider:         "openai",
			FallbackProvider: "openai",
		},
		Payments: config.PaymentsConfig{
			Provider: "paystack",
		},
		Jobs: config.JobsConfig{
			EmbeddingWorkers:     1,
			EmbeddingQueueSize:   4,
			EmbeddingMaxAttempts: 1,
			UsageResetSchedule:   "@daily",
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}
