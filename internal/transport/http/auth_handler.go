// Package http implements the HTTP transport: request binding, error
// translation, and routing for the auth, license, admin, and health
// surfaces.
package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "pharmapos/internal/errors"
	"pharmapos/internal/services"
	"pharmapos/pkg/contracts/domain"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	auth   services.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth services.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger.With(slog.String("handler", "auth")),
	}
}

// Routes returns the chi router for authentication endpoints.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	return r
}

// Login authenticates an email/password pair. A valid credential pair
// behind a blocked license is rejected with the guard's verdict; the
// payload carries the pharmacy id so the lock screen can target the
// activation endpoint.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req := &domain.LoginRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.renderLoginError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrInvalidCredentials) {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInvalidCredentials))
		return
	}

	var blocked *services.ErrLicenseBlocked
	if errors.As(err, &blocked) {
		apiErr := apierrors.FromGuardDecision(blocked.Decision)
		details := map[string]any{"pharmacy_id": blocked.PharmacyID.String()}
		if m, ok := apiErr.Details.(map[string]any); ok {
			for k, v := range m {
				details[k] = v
			}
		}
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.NewWithDetails(apiErr.StatusCode, apiErr.ErrorCode, apiErr.Message, details)))
		return
	}

	h.logger.ErrorContext(r.Context(), "login failed", slog.String("error", err.Error()))
	render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
}
