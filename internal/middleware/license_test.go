package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/auth"
	"pharmapos/internal/license"
	"pharmapos/internal/services"
)

// stubAuth lets tests script the session validation outcome.
type stubAuth struct {
	session *services.Session
	err     error
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (*services.LoginResult, error) {
	panic("not used")
}

func (s *stubAuth) ValidateSession(ctx context.Context, token string) (*services.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gateFor(t *testing.T, stub *stubAuth) *LicenseGate {
	t.Helper()
	metrics, err := NewGateMetrics()
	require.NoError(t, err)
	return NewLicenseGate(stub, discardLogger(), metrics)
}

func serveGated(gate *LicenseGate, token string, next http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	gate.Handler(next).ServeHTTP(rr, req)
	return rr
}

func TestGatePassesSessionToHandler(t *testing.T) {
	session := &services.Session{UserID: uuid.New(), PharmacyID: uuid.New(), Role: "owner"}
	gate := gateFor(t, &stubAuth{session: session})

	var seen *services.Session
	rr := serveGated(gate, "token", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
	}))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, session.UserID, seen.UserID)
}

func TestGateRejectsMissingToken(t *testing.T) {
	gate := gateFor(t, &stubAuth{session: &services.Session{}})

	rr := serveGated(gate, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGateRejectsInvalidToken(t *testing.T) {
	gate := gateFor(t, &stubAuth{err: auth.ErrInvalidToken})

	rr := serveGated(gate, "garbage", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGateTranslatesGuardVerdicts(t *testing.T) {
	tests := []struct {
		name       string
		state      license.State
		wantStatus int
	}{
		{"suspended", license.StateSuspended, http.StatusForbidden},
		{"expired", license.StateExpired, http.StatusForbidden},
		{"unknown", license.StateUnknown, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := gateFor(t, &stubAuth{err: &services.ErrLicenseBlocked{
				Decision: license.Decision{State: tt.state},
			}})
			rr := serveGated(gate, "token", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Owner session is refused.
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	ctx := context.WithValue(req.Context(), sessionContextKey{}, &services.Session{Role: "owner"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Admin session passes.
	ctx = context.WithValue(req.Context(), sessionContextKey{}, &services.Session{Role: "admin"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(ctx))
	assert.Equal(t, http.StatusOK, rr.Code)

	// No session at all is refused.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
