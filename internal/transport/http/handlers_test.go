package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/auth"
	"pharmapos/internal/license"
	custommw "pharmapos/internal/middleware"
	"pharmapos/internal/security"
	"pharmapos/internal/services"
	"pharmapos/internal/store"
)

// testServer assembles the real router over the in-memory store, the
// same way the application container wires it.
type testServer struct {
	store     *store.MemoryStore
	authority *license.Authority
	router    *chi.Mux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := store.NewMemoryStore()
	codec, err := license.NewKeyCodec([]byte("handler-test-signing-secret-16b"))
	require.NoError(t, err)
	authority := license.NewAuthority(s, codec, logger)

	licenseSvc := services.NewLicenseService(s, authority, security.NewFingerprintManager(), logger)
	tokens := auth.NewTokenIssuer("handler-test-jwt-secret", time.Hour)
	authSvc := services.NewAuthService(s, licenseSvc, tokens, logger)
	healthSvc := services.NewHealthService(s, "test")

	metrics, err := custommw.NewGateMetrics()
	require.NoError(t, err)
	gate := custommw.NewLicenseGate(authSvc, logger, metrics)
	limiter := custommw.NewRateLimiter(1000, 1000, false)

	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Route("/api", func(r chi.Router) {
		r.With(limiter.Handler).Mount("/auth", NewAuthHandler(authSvc, logger).Routes())
		r.Mount("/license", NewLicenseHandler(licenseSvc, logger).Routes(limiter.Handler, gate.Handler))
		r.Route("/admin", func(r chi.Router) {
			r.Use(gate.Handler)
			r.Use(custommw.RequireRole("admin"))
			r.Mount("/", NewAdminHandler(authority, 4, logger).Routes())
		})
		r.Mount("/health", NewHealthHandler(healthSvc, logger).Routes())
	})

	return &testServer{store: s, authority: authority, router: r}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeJSON(t, rr)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got: %s", rr.Body.String())
	code, _ := errObj["error_code"].(string)
	return code
}

func (ts *testServer) onboardTenant(t *testing.T, term license.Term) *store.LicenseRecord {
	t.Helper()
	hash, err := auth.HashPassword("owner-password", 4)
	require.NoError(t, err)
	rec, _, err := ts.authority.Onboard(context.Background(), license.OnboardParams{
		PharmacyName:      "Al-Razi Pharmacy",
		OwnerEmail:        "owner@alrazi.example",
		OwnerPasswordHash: hash,
		Term:              term,
		PaidAmount:        5000,
	})
	require.NoError(t, err)
	return rec
}

func (ts *testServer) seedAdmin(t *testing.T) {
	t.Helper()
	hash, err := auth.HashPassword("admin-password", 4)
	require.NoError(t, err)
	require.NoError(t, ts.store.CreateUser(context.Background(), &store.User{
		ID:           uuid.New(),
		Email:        "admin@pharmapos.example",
		PasswordHash: hash,
		Role:         "admin",
	}))
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	token, _ := decodeJSON(t, rr)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.onboardTenant(t, license.Term{Months: 12})

	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "owner@alrazi.example", "password": "owner-password",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeJSON(t, rr)
	assert.NotEmpty(t, body["token"])
	lic, ok := body["license"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "active", lic["state"])
}

func TestLoginEndpointBadPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.onboardTenant(t, license.Term{Months: 12})

	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "owner@alrazi.example", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rr))
}

func TestLoginEndpointMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "not-an-email", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginSuspendedCarriesPharmacyID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.onboardTenant(t, license.Term{Months: 12})
	_, err := ts.authority.Suspend(context.Background(), rec.PharmacyID)
	require.NoError(t, err)

	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "owner@alrazi.example", "password": "owner-password",
	})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "LICENSE_SUSPENDED", errorCode(t, rr))

	errObj := decodeJSON(t, rr)["error"].(map[string]any)
	details, ok := errObj["details"].(map[string]any)
	require.True(t, ok, "lock screen needs the pharmacy id to target activation")
	assert.Equal(t, rec.PharmacyID.String(), details["pharmacy_id"])
}

func TestStatusEndpointRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	ts.onboardTenant(t, license.Term{Months: 12})

	rr := ts.do(t, http.MethodGet, "/api/license/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token := ts.login(t, "owner@alrazi.example", "owner-password")
	rr = ts.do(t, http.MethodGet, "/api/license/status", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "active", decodeJSON(t, rr)["state"])
}

func TestMachineIDEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/license/machine-id", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decodeJSON(t, rr)["machine_id"])
}

func TestActivateWithoutSessionRequiresPharmacyID(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/license/activate", "", map[string]string{
		"license_key": "PHR-AAAA-BBBB-CCCC",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminRoutesForbiddenForOwners(t *testing.T) {
	ts := newTestServer(t)
	ts.onboardTenant(t, license.Term{Months: 12})
	token := ts.login(t, "owner@alrazi.example", "owner-password")

	rr := ts.do(t, http.MethodPost, "/api/admin/pharmacies", token, map[string]any{
		"pharmacy_name": "X", "owner_email": "x@example.com", "owner_password": "12345678",
		"term": map[string]int{"months": 1},
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAdminTenantLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t)
	adminToken := ts.login(t, "admin@pharmapos.example", "admin-password")

	// Onboard.
	rr := ts.do(t, http.MethodPost, "/api/admin/pharmacies", adminToken, map[string]any{
		"pharmacy_name":  "Ibn Sina Pharmacy",
		"owner_email":    "owner@ibnsina.example",
		"owner_password": "owner-password",
		"term":           map[string]int{"months": 12},
		"paid_amount":    5000,
	})
	require.Equal(t, http.StatusCreated, rr.Code, "body: %s", rr.Body.String())
	created := decodeJSON(t, rr)
	pharmacyID := created["pharmacy_id"].(string)
	key := created["activation_key"].(string)
	assert.Contains(t, key, "-", "hand-off key is dash formatted")

	base := "/api/admin/pharmacies/" + pharmacyID

	// Renew with a machine binding mints a fresh hand-off key.
	rr = ts.do(t, http.MethodPost, base+"/renew", adminToken, map[string]any{
		"term":        map[string]int{"months": 12},
		"paid_amount": 5000,
		"machine_id":  "TERMINAL-7",
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	renewed := decodeJSON(t, rr)
	assert.NotEmpty(t, renewed["activation_key"])
	assert.Equal(t, true, renewed["machine_bound"])
	assert.Equal(t, float64(10000), renewed["total_paid"])

	// Suspend and reactivate.
	rr = ts.do(t, http.MethodPost, base+"/suspend", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeJSON(t, rr)["is_active"])

	rr = ts.do(t, http.MethodPost, base+"/reactivate", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSON(t, rr)["is_active"])

	// Purge; the second attempt reports the tenant gone.
	rr = ts.do(t, http.MethodDelete, base, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodDelete, base, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExpiredTenantRenewalFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t)

	// Trial onboarded in the past, long expired by now.
	past := time.Now().UTC().Add(-48 * time.Hour)
	ts.authority.WithClock(func() time.Time { return past })
	rec := ts.onboardTenant(t, license.Term{Minutes: 3})
	ts.authority.WithClock(func() time.Time { return time.Now().UTC() })

	// Login is rejected with the expiry verdict.
	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "owner@alrazi.example", "password": "owner-password",
	})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "LICENSE_EXPIRED", errorCode(t, rr))

	// Admin issues a renewal key bound to this terminal.
	adminToken := ts.login(t, "admin@pharmapos.example", "admin-password")
	machineRR := ts.do(t, http.MethodGet, "/api/license/machine-id", "", nil)
	require.Equal(t, http.StatusOK, machineRR.Code)
	machineID := decodeJSON(t, machineRR)["machine_id"].(string)

	rr = ts.do(t, http.MethodPost, fmt.Sprintf("/api/admin/pharmacies/%s/renew", rec.PharmacyID), adminToken, map[string]any{
		"term":        map[string]int{"months": 12},
		"paid_amount": 5000,
		"machine_id":  machineID,
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	key := decodeJSON(t, rr)["activation_key"].(string)
	require.NotEmpty(t, key)

	// The locked terminal redeems the key without a session.
	rr = ts.do(t, http.MethodPost, "/api/license/activate", "", map[string]string{
		"pharmacy_id": rec.PharmacyID.String(),
		"license_key": key,
	})
	require.Equal(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	assert.Equal(t, "active", decodeJSON(t, rr)["state"])

	// And logging in works again.
	ts.login(t, "owner@alrazi.example", "owner-password")
}

func TestActivateRejectsTamperedKey(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.onboardTenant(t, license.Term{Months: 12})

	_, key, err := ts.authority.Renew(context.Background(), rec.PharmacyID, license.RenewParams{
		Term:      license.Term{Months: 1},
		MachineID: "TERMINAL-1",
	})
	require.NoError(t, err)

	tampered := key[:len(key)-1] + pick(key[len(key)-1])
	rr := ts.do(t, http.MethodPost, "/api/license/activate", "", map[string]string{
		"pharmacy_id": rec.PharmacyID.String(),
		"license_key": tampered,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// pick returns a base32 character different from the given one.
func pick(c byte) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	if idx := strings.IndexByte(alphabet, c); idx != 0 {
		return string(alphabet[0])
	}
	return string(alphabet[1])
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decodeJSON(t, rr)["status"])

	rr = ts.do(t, http.MethodGet, "/api/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", decodeJSON(t, rr)["status"])
}
