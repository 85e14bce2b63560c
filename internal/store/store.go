// Package store provides durable persistence for pharmacy license records
// and owner accounts. The rest of the application treats it as a
// transactional key-value map keyed by pharmacy ID; all mutations are
// atomic per pharmacy.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a pharmacy or user record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when creating a user whose login email
	// is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// LicenseRecord is the durable license state for one pharmacy. It is owned
// exclusively by the license authority; clients never write it directly.
type LicenseRecord struct {
	PharmacyID      uuid.UUID `json:"pharmacy_id"`
	Name            string    `json:"name"`
	IsActive        bool      `json:"is_active"`
	LicenseStarted  time.Time `json:"license_started_at"`
	LicenseExpires  time.Time `json:"license_expires_at"`
	LicenseNo       string    `json:"license_no"`
	BoundMachineID  string    `json:"bound_machine_id,omitempty"`
	SubscriptionFee int64     `json:"subscription_fee"`
	TotalPaid       int64     `json:"total_paid"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// User is an owner or operator account. Passwords are stored as bcrypt
// hashes only.
type User struct {
	ID           uuid.UUID `json:"id"`
	PharmacyID   uuid.UUID `json:"pharmacy_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// LicenseMutation describes a partial update to a license record. Nil
// fields are left untouched. PaidAmount is applied as an atomic increment
// to total_paid, never as a read-modify-write.
type LicenseMutation struct {
	IsActive       *bool
	LicenseStarted *time.Time
	LicenseExpires *time.Time
	LicenseNo      *string
	BoundMachineID *string
	PaidAmount     int64
}

// LicenseStore is the persistence boundary for license records. Every
// method is atomic with respect to a single pharmacy.
type LicenseStore interface {
	Get(ctx context.Context, pharmacyID uuid.UUID) (*LicenseRecord, error)
	Create(ctx context.Context, rec *LicenseRecord) error
	Update(ctx context.Context, pharmacyID uuid.UUID, mut LicenseMutation) (*LicenseRecord, error)
	// Delete removes the pharmacy and cascades to its users and business
	// data. Returns ErrNotFound if the pharmacy does not exist.
	Delete(ctx context.Context, pharmacyID uuid.UUID) error
}

// UserStore is the persistence boundary for owner accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// Store combines both persistence boundaries; the SQLite and in-memory
// implementations satisfy it.
type Store interface {
	LicenseStore
	UserStore
}
