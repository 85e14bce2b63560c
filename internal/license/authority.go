package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pharmapos/internal/store"
)

// Authority is the sole component permitted to mint activation keys and
// mutate license records. All operations validate their inputs before
// touching the store; a rejected operation applies no mutation.
type Authority struct {
	store  store.Store
	codec  *KeyCodec
	logger *slog.Logger
	tracer trace.Tracer

	// now is injectable for tests; the authority's own clock is always
	// authoritative, never a client-supplied time.
	now func() time.Time
}

// NewAuthority wires an authority over the given store and codec.
func NewAuthority(s store.Store, codec *KeyCodec, logger *slog.Logger) *Authority {
	return &Authority{
		store:  s,
		codec:  codec,
		logger: logger.With(slog.String("component", "license_authority")),
		tracer: otel.Tracer("license-authority"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the authority clock. Intended for tests.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}

// OnboardParams are the inputs for creating a new pharmacy tenant.
type OnboardParams struct {
	PharmacyName      string
	OwnerEmail        string
	OwnerPasswordHash string
	Term              Term
	PaidAmount        int64
	// MachineID optionally binds the first key to known hardware;
	// normally binding happens at first activation instead.
	MachineID string
}

// Onboard creates the license record and owner account for a new
// pharmacy and mints its first activation key.
func (a *Authority) Onboard(ctx context.Context, p OnboardParams) (*store.LicenseRecord, string, error) {
	ctx, span := a.tracer.Start(ctx, "authority.onboard",
		trace.WithAttributes(attribute.String("pharmacy.name", p.PharmacyName)))
	defer span.End()

	if p.PharmacyName == "" {
		return nil, "", &ValidationError{Field: "pharmacy_name", Reason: "is required"}
	}
	if p.OwnerEmail == "" || p.OwnerPasswordHash == "" {
		return nil, "", &ValidationError{Field: "owner", Reason: "email and password are required"}
	}
	if p.PaidAmount < 0 {
		return nil, "", &ValidationError{Field: "paid_amount", Reason: "must not be negative"}
	}
	if err := p.Term.Validate(); err != nil {
		return nil, "", err
	}

	// Duplicate identity check before any write, so a rejected onboard
	// leaves no partial state behind.
	if _, err := a.store.FindUserByEmail(ctx, p.OwnerEmail); err == nil {
		return nil, "", ErrDuplicateOwner
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to check owner identity: %w", err)
	}

	now := a.now()
	rec := &store.LicenseRecord{
		PharmacyID:      uuid.New(),
		Name:            p.PharmacyName,
		IsActive:        true,
		LicenseStarted:  now,
		LicenseExpires:  p.Term.End(now),
		SubscriptionFee: p.PaidAmount,
		TotalPaid:       p.PaidAmount,
		BoundMachineID:  p.MachineID,
	}

	key, err := a.codec.Encode(Claims{
		PharmacyID:    rec.PharmacyID,
		ExpiresAt:     rec.LicenseExpires,
		MachineDigest: MachineDigest(p.MachineID),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint activation key: %w", err)
	}
	rec.LicenseNo = key

	if err := a.store.Create(ctx, rec); err != nil {
		return nil, "", fmt.Errorf("failed to create license record: %w", err)
	}
	if err := a.store.CreateUser(ctx, &store.User{
		ID:           uuid.New(),
		PharmacyID:   rec.PharmacyID,
		Email:        p.OwnerEmail,
		PasswordHash: p.OwnerPasswordHash,
		Role:         "owner",
	}); err != nil {
		// Roll the tenant back so the store is never half-onboarded.
		if delErr := a.store.Delete(ctx, rec.PharmacyID); delErr != nil {
			a.logger.ErrorContext(ctx, "failed to roll back pharmacy after user creation failure",
				slog.String("pharmacy_id", rec.PharmacyID.String()),
				slog.String("error", delErr.Error()))
		}
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, "", ErrDuplicateOwner
		}
		return nil, "", fmt.Errorf("failed to create owner account: %w", err)
	}

	a.logger.InfoContext(ctx, "pharmacy onboarded",
		slog.String("pharmacy_id", rec.PharmacyID.String()),
		slog.String("pharmacy_name", rec.Name),
		slog.Bool("trial", p.Term.IsTrial()),
		slog.Time("expires_at", rec.LicenseExpires),
		slog.Int64("paid_amount", p.PaidAmount),
		slog.String("license_key", MaskKey(key)),
	)
	return rec, key, nil
}

// RenewParams are the inputs for extending or adjusting a license.
type RenewParams struct {
	Term       Term
	IsActive   *bool
	PaidAmount int64
	// MachineID, when supplied, rebinds the license and causes a fresh
	// key to be minted for hand-off to the tenant.
	MachineID string
}

// Renew recomputes the license term from the current instant. Renewal
// restarts from now rather than stacking onto the previous expiry, so an
// early renewal forfeits remaining days. A new key is returned only when
// MachineID is supplied; otherwise existing key material stays valid
// because the guard checks live expiry, not the key string.
func (a *Authority) Renew(ctx context.Context, pharmacyID uuid.UUID, p RenewParams) (*store.LicenseRecord, string, error) {
	ctx, span := a.tracer.Start(ctx, "authority.renew",
		trace.WithAttributes(attribute.String("pharmacy.id", pharmacyID.String())))
	defer span.End()

	if p.PaidAmount < 0 {
		return nil, "", &ValidationError{Field: "paid_amount", Reason: "must not be negative"}
	}
	if err := p.Term.Validate(); err != nil {
		return nil, "", err
	}
	if _, err := a.store.Get(ctx, pharmacyID); err != nil {
		return nil, "", err
	}

	now := a.now()
	expires := p.Term.End(now)
	mut := store.LicenseMutation{
		LicenseStarted: &now,
		LicenseExpires: &expires,
		IsActive:       p.IsActive,
		PaidAmount:     p.PaidAmount,
	}

	var key string
	if p.MachineID != "" {
		var err error
		key, err = a.codec.Encode(Claims{
			PharmacyID:    pharmacyID,
			ExpiresAt:     expires,
			MachineDigest: MachineDigest(p.MachineID),
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to mint activation key: %w", err)
		}
		mut.LicenseNo = &key
		mut.BoundMachineID = &p.MachineID
	}

	rec, err := a.store.Update(ctx, pharmacyID, mut)
	if err != nil {
		return nil, "", err
	}

	a.logger.InfoContext(ctx, "license renewed",
		slog.String("pharmacy_id", pharmacyID.String()),
		slog.Time("expires_at", rec.LicenseExpires),
		slog.Int64("paid_amount", p.PaidAmount),
		slog.Bool("rebound", p.MachineID != ""),
	)
	return rec, key, nil
}

// Suspend flips the administrator kill switch without touching expiry or
// payments.
func (a *Authority) Suspend(ctx context.Context, pharmacyID uuid.UUID) (*store.LicenseRecord, error) {
	return a.setActive(ctx, pharmacyID, false)
}

// Reactivate clears the kill switch; expiry still applies.
func (a *Authority) Reactivate(ctx context.Context, pharmacyID uuid.UUID) (*store.LicenseRecord, error) {
	return a.setActive(ctx, pharmacyID, true)
}

func (a *Authority) setActive(ctx context.Context, pharmacyID uuid.UUID, active bool) (*store.LicenseRecord, error) {
	ctx, span := a.tracer.Start(ctx, "authority.set_active",
		trace.WithAttributes(
			attribute.String("pharmacy.id", pharmacyID.String()),
			attribute.Bool("active", active)))
	defer span.End()

	rec, err := a.store.Update(ctx, pharmacyID, store.LicenseMutation{IsActive: &active})
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "license active flag changed",
		slog.String("pharmacy_id", pharmacyID.String()),
		slog.Bool("is_active", active))
	return rec, nil
}

// Purge irreversibly deletes the pharmacy; the store cascades to owner
// accounts and the tenant's business data.
func (a *Authority) Purge(ctx context.Context, pharmacyID uuid.UUID) error {
	ctx, span := a.tracer.Start(ctx, "authority.purge",
		trace.WithAttributes(attribute.String("pharmacy.id", pharmacyID.String())))
	defer span.End()

	if err := a.store.Delete(ctx, pharmacyID); err != nil {
		return err
	}
	a.logger.WarnContext(ctx, "pharmacy purged",
		slog.String("pharmacy_id", pharmacyID.String()))
	return nil
}

// Activate validates an operator-entered key against the target pharmacy
// and the reporting machine, then applies the key's claims to the store.
// Applying the claims makes activation idempotent with Renew's
// machine-binding path.
func (a *Authority) Activate(ctx context.Context, pharmacyID uuid.UUID, enteredKey, machineID string) (*store.LicenseRecord, error) {
	ctx, span := a.tracer.Start(ctx, "authority.activate",
		trace.WithAttributes(attribute.String("pharmacy.id", pharmacyID.String())))
	defer span.End()

	claims, err := a.codec.Decode(enteredKey)
	if err != nil {
		a.logger.WarnContext(ctx, "activation rejected: bad key",
			slog.String("pharmacy_id", pharmacyID.String()),
			slog.String("license_key", MaskKey(enteredKey)),
			slog.String("error", err.Error()))
		return nil, err
	}
	if claims.PharmacyID != pharmacyID {
		return nil, ErrPharmacyMismatch
	}
	if claims.Bound() && claims.MachineDigest != MachineDigest(machineID) {
		return nil, ErrMachineMismatch
	}
	now := a.now()
	if !now.Before(claims.ExpiresAt) {
		return nil, ErrKeyExpired
	}

	normalized := NormalizeKey(enteredKey)
	mut := store.LicenseMutation{
		LicenseExpires: &claims.ExpiresAt,
		LicenseNo:      &normalized,
	}
	if machineID != "" {
		mut.BoundMachineID = &machineID
	}
	rec, err := a.store.Update(ctx, pharmacyID, mut)
	if err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "license activated",
		slog.String("pharmacy_id", pharmacyID.String()),
		slog.Time("expires_at", rec.LicenseExpires),
		slog.Bool("machine_bound", claims.Bound()))
	return rec, nil
}
