package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apierrors "pharmapos/internal/errors"
	"pharmapos/internal/services"
)

type sessionContextKey struct{}

// SessionFromContext returns the authenticated session placed by the
// LicenseGate, or nil for unauthenticated requests.
func SessionFromContext(ctx context.Context) *services.Session {
	s, _ := ctx.Value(sessionContextKey{}).(*services.Session)
	return s
}

// GateMetrics holds the OpenTelemetry counters for the license gate.
type GateMetrics struct {
	RequestsTotal metric.Int64Counter
	BlockedTotal  metric.Int64Counter
}

// NewGateMetrics registers the gate counters on the given meter.
func NewGateMetrics() (*GateMetrics, error) {
	meter := otel.Meter("pharmapos/license-gate")
	requests, err := meter.Int64Counter("license_gate_requests_total",
		metric.WithDescription("Requests evaluated by the license gate"))
	if err != nil {
		return nil, err
	}
	blocked, err := meter.Int64Counter("license_gate_blocked_total",
		metric.WithDescription("Requests blocked by the license gate, by state"))
	if err != nil {
		return nil, err
	}
	return &GateMetrics{RequestsTotal: requests, BlockedTotal: blocked}, nil
}

// LicenseGate authenticates the bearer credential and re-evaluates the
// license guard on every request it wraps. There is no cross-request
// cache: a suspension or purge takes effect on the very next call even
// if the credential itself is still unexpired.
type LicenseGate struct {
	auth    services.AuthService
	logger  *slog.Logger
	metrics *GateMetrics
}

// NewLicenseGate creates the authentication/license middleware.
func NewLicenseGate(auth services.AuthService, logger *slog.Logger, metrics *GateMetrics) *LicenseGate {
	return &LicenseGate{
		auth:    auth,
		logger:  logger.With(slog.String("component", "license_gate")),
		metrics: metrics,
	}
}

// Handler wraps privileged routes.
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if g.metrics != nil {
			g.metrics.RequestsTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("path", r.URL.Path)))
		}

		token := bearerToken(r)
		if token == "" {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrUnauthorized))
			return
		}

		session, err := g.auth.ValidateSession(ctx, token)
		if err != nil {
			g.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionContextKey{}, session)))
	})
}

// RequireRole guards a route on the session's role claim. It must run
// inside Handler.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil || session.Role != role {
				render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *LicenseGate) reject(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *services.ErrLicenseBlocked
	if errors.As(err, &blocked) {
		if g.metrics != nil {
			g.metrics.BlockedTotal.Add(r.Context(), 1,
				metric.WithAttributes(attribute.String("state", string(blocked.Decision.State))))
		}
		g.logger.WarnContext(r.Context(), "request blocked by license gate",
			slog.String("state", string(blocked.Decision.State)),
			slog.String("path", r.URL.Path))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromGuardDecision(blocked.Decision)))
		return
	}
	render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrUnauthorized))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
