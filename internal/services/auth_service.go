package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pharmapos/internal/auth"
	"pharmapos/internal/license"
	"pharmapos/internal/store"
)

// ErrInvalidCredentials is returned for a bad email/password pair. It is
// deliberately indistinguishable from an unknown email.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLicenseBlocked carries the guard decision that blocked a login or
// session so the transport layer can render the right lock screen.
// PharmacyID is included (when known) so a locked client can target the
// activation endpoint without a session.
type ErrLicenseBlocked struct {
	Decision   license.Decision
	PharmacyID uuid.UUID
}

func (e *ErrLicenseBlocked) Error() string {
	return fmt.Sprintf("license gate blocked request: %s", e.Decision.State)
}

// LoginResult is the successful login payload: a bearer credential plus
// the license summary the client caches optimistically.
type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"token_expires_at"`
	Role      string          `json:"role"`
	License   *LicenseSummary `json:"license,omitempty"`
}

// Session identifies an authenticated, license-checked caller.
type Session struct {
	UserID     uuid.UUID
	PharmacyID uuid.UUID
	Role       string
}

// AuthService authenticates users and validates sessions. The license
// guard runs at login before any credential is issued, and again on
// every privileged call so a credential issued before a purge or
// suspension stops working immediately.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	ValidateSession(ctx context.Context, token string) (*Session, error)
}

type authService struct {
	store   store.Store
	license LicenseService
	tokens  *auth.TokenIssuer
	logger  *slog.Logger
}

// NewAuthService wires the auth service.
func NewAuthService(s store.Store, licenseSvc LicenseService, tokens *auth.TokenIssuer, logger *slog.Logger) AuthService {
	return &authService{
		store:   s,
		license: licenseSvc,
		tokens:  tokens,
		logger:  logger.With(slog.String("service", "auth")),
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		s.logger.WarnContext(ctx, "login rejected: bad password",
			slog.String("user_id", user.ID.String()))
		return nil, ErrInvalidCredentials
	}

	result := &LoginResult{Role: user.Role}

	// Back-office accounts have no tenant and no license gate.
	if user.PharmacyID != uuid.Nil {
		d, err := s.license.Guard(ctx, user.PharmacyID)
		if err != nil {
			return nil, err
		}
		if !d.Allowed() {
			s.logger.WarnContext(ctx, "login blocked by license gate",
				slog.String("pharmacy_id", user.PharmacyID.String()),
				slog.String("state", string(d.State)))
			return nil, &ErrLicenseBlocked{Decision: d, PharmacyID: user.PharmacyID}
		}
		summary, err := s.license.Status(ctx, user.PharmacyID)
		if err != nil {
			return nil, err
		}
		result.License = summary
	}

	token, exp, err := s.tokens.Issue(user.ID, user.PharmacyID, user.Role)
	if err != nil {
		return nil, err
	}
	result.Token = token
	result.ExpiresAt = exp

	s.logger.InfoContext(ctx, "login succeeded",
		slog.String("user_id", user.ID.String()),
		slog.String("role", user.Role))
	return result, nil
}

// ValidateSession verifies the bearer token and re-checks that the
// backing account and license still authorize access. A valid token
// whose pharmacy has been purged or suspended is rejected here.
func (s *authService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	// The account must still exist; covers credentials issued before a
	// purge took effect.
	if _, err := s.store.FindUserByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ErrLicenseBlocked{Decision: license.Decision{State: license.StateUnknown}}
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if claims.PharmacyID != uuid.Nil {
		d, err := s.license.Guard(ctx, claims.PharmacyID)
		if err != nil {
			return nil, err
		}
		if !d.Allowed() {
			return nil, &ErrLicenseBlocked{Decision: d, PharmacyID: claims.PharmacyID}
		}
	}

	return &Session{
		UserID:     claims.UserID,
		PharmacyID: claims.PharmacyID,
		Role:       claims.Role,
	}, nil
}
