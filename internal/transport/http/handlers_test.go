package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admissionconfig "auditgate/internal/admission/config"
	"auditgate/internal/admission/models"
	"auditgate/internal/admission/quota"
	"auditgate/internal/admission/ratelimit"
	"auditgate/internal/admission/store"
	"auditgate/internal/admission/tier"
	"auditgate/internal/platform/middleware"
)

const (
	testUserToken  = "valid-user-token"
	testAdminToken = "admin-secret"
)

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*middleware.TokenClaims, error) {
	if token == testUserToken {
		return &middleware.TokenClaims{UserID: "user-1"}, nil
	}
	return nil, assert.AnError
}

type testServer struct {
	router http.Handler
	ledger *quota.Service
	tiers  *tier.StaticResolver
}

func newTestServer(t *testing.T, screenshotLimit int) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tables := admissionconfig.Default()
	tiers := tier.NewStatic()

	ledger, err := quota.New(store.NewMemory(), tiers, tables, quota.WithLogger(logger))
	require.NoError(t, err)

	windows := store.NewMemory()
	apiLimiter, err := ratelimit.New(windows, ratelimit.PresetConfig(tables, "api"))
	require.NoError(t, err)

	screenshotLimiter, err := ratelimit.New(windows, ratelimit.Config{
		Limit:     screenshotLimit,
		Window:    time.Minute,
		KeyPrefix: "screenshot",
	})
	require.NoError(t, err)

	h := NewHandler(ledger, map[string]*ratelimit.Service{
		models.OpScreenshot: screenshotLimiter,
	}, logger)

	router := NewRouter(h, RouterConfig{
		APILimiter:     apiLimiter,
		TokenValidator: staticValidator{},
		AdminToken:     testAdminToken,
		RequestTimeout: 5 * time.Second,
	}, logger)

	return &testServer{router: router, ledger: ledger, tiers: tiers}
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func authed(extra ...string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + testUserToken}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestBalanceRequiresAuth(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodGet, "/v1/quota/balance", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBalance(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodGet, "/v1/quota/balance", "", authed())

	require.Equal(t, http.StatusOK, w.Code)

	var balance models.Balance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	assert.Equal(t, 1000, balance.TokensLimit)
	assert.Equal(t, 0, balance.TokensUsed)
	assert.Equal(t, models.TierFree, balance.Tier)
}

func TestAudit_DefaultMultiplier(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodPost, "/v1/audits/screenshot", "", authed())

	require.Equal(t, http.StatusOK, w.Code)

	var resp auditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "screenshot", resp.Operation)
	assert.Equal(t, 10, resp.TokensConsumed)
	assert.Equal(t, 990, resp.NewBalance)

	// Operation window headers come from the screenshot preset.
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))
}

func TestAudit_MultiplierScaling(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodPost, "/v1/audits/screenshot", `{"multiplier":3}`, authed())

	require.Equal(t, http.StatusOK, w.Code)

	var resp auditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 30, resp.TokensConsumed)
	assert.Equal(t, 970, resp.NewBalance)
}

func TestAudit_UnknownOperation(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodPost, "/v1/audits/tarot", "", authed())

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAudit_InvalidMultiplier(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodPost, "/v1/audits/screenshot", `{"multiplier":-2}`, authed())

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAudit_QuotaExhausted(t *testing.T) {
	ts := newTestServer(t, 30)

	for i := 0; i < 10; i++ {
		w := ts.do(http.MethodPost, "/v1/audits/triageReport", "", authed())
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := ts.do(http.MethodPost, "/v1/audits/screenshot", "", authed())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp models.QuotaExceededResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "Insufficient tokens")
	assert.Equal(t, 0, resp.TokensRemaining)
}

func TestAudit_OperationRateLimit(t *testing.T) {
	ts := newTestServer(t, 1)

	w := ts.do(http.MethodPost, "/v1/audits/screenshot", "", authed())
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodPost, "/v1/audits/screenshot", "", authed())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp models.RateLimitExceededResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Too Many Requests", resp.Error)
	assert.Greater(t, resp.RetryAfter, 0)

	// The denied request consumed no tokens.
	balance := ts.do(http.MethodGet, "/v1/quota/balance", "", authed())
	var b models.Balance
	require.NoError(t, json.Unmarshal(balance.Body.Bytes(), &b))
	assert.Equal(t, 10, b.TokensUsed)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, 30)

	w := ts.do(http.MethodPost, "/v1/audits/lighthouseAudit", "", authed())
	require.Equal(t, http.StatusOK, w.Code)

	resp := ts.do(http.MethodGet, "/v1/quota/history?months=2", "", authed())
	require.Equal(t, http.StatusOK, resp.Code)

	var history historyResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &history))
	require.Len(t, history.Periods, 2)
	assert.Equal(t, 50, history.Periods[0].TokensUsed)
	assert.Equal(t, 0, history.Periods[1].TokensUsed)
}

func TestHistory_InvalidMonths(t *testing.T) {
	ts := newTestServer(t, 30)
	w := ts.do(http.MethodGet, "/v1/quota/history?months=soon", "", authed())

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminReset(t *testing.T) {
	ts := newTestServer(t, 30)

	w := ts.do(http.MethodPost, "/v1/audits/triageReport", "", authed())
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("requires admin token", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/v1/admin/quota/user-1/reset", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("resets usage", func(t *testing.T) {
		w := ts.do(http.MethodPost, "/v1/admin/quota/user-1/reset", "",
			map[string]string{"X-Admin-Token": testAdminToken})
		require.Equal(t, http.StatusOK, w.Code)

		balance := ts.do(http.MethodGet, "/v1/quota/balance", "", authed())
		var b models.Balance
		require.NoError(t, json.Unmarshal(balance.Body.Bytes(), &b))
		assert.Equal(t, 0, b.TokensUsed)
	})
}

func TestAdminTierUpdate(t *testing.T) {
	ts := newTestServer(t, 30)

	w := ts.do(http.MethodPost, "/v1/audits/triageReport", `{"multiplier":5}`, authed())
	require.Equal(t, http.StatusOK, w.Code)

	resp := ts.do(http.MethodPut, "/v1/admin/quota/user-1/tier", `{"tier":"team"}`,
		map[string]string{"X-Admin-Token": testAdminToken})
	require.Equal(t, http.StatusOK, resp.Code)

	var b models.Balance
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &b))
	assert.Equal(t, models.TierTeam, b.Tier)
	assert.Equal(t, 25000, b.TokensLimit)
	assert.Equal(t, 500, b.TokensUsed)
}

func TestAdminTierUpdate_InvalidTier(t *testing.T) {
	ts := newTestServer(t, 30)

	w := ts.do(http.MethodPut, "/v1/admin/quota/user-1/tier", `{"tier":"platinum"}`,
		map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
