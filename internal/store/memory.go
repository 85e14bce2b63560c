package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation. It backs unit tests
// and the demo mode of the server; the per-pharmacy mutex gives it the
// same atomicity guarantees as the SQLite store.
type MemoryStore struct {
	mu       sync.RWMutex
	licenses map[uuid.UUID]LicenseRecord
	users    map[uuid.UUID]User
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[uuid.UUID]LicenseRecord),
		users:    make(map[uuid.UUID]User),
	}
}

func (s *MemoryStore) Get(ctx context.Context, pharmacyID uuid.UUID) (*LicenseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.licenses[pharmacyID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) Create(ctx context.Context, rec *LicenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := *rec
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.licenses[rec.PharmacyID] = stored
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, pharmacyID uuid.UUID, mut LicenseMutation) (*LicenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.licenses[pharmacyID]
	if !ok {
		return nil, ErrNotFound
	}
	if mut.IsActive != nil {
		rec.IsActive = *mut.IsActive
	}
	if mut.LicenseStarted != nil {
		rec.LicenseStarted = *mut.LicenseStarted
	}
	if mut.LicenseExpires != nil {
		rec.LicenseExpires = *mut.LicenseExpires
	}
	if mut.LicenseNo != nil {
		rec.LicenseNo = *mut.LicenseNo
	}
	if mut.BoundMachineID != nil {
		rec.BoundMachineID = *mut.BoundMachineID
	}
	rec.TotalPaid += mut.PaidAmount
	rec.UpdatedAt = time.Now().UTC()

	s.licenses[pharmacyID] = rec
	out := rec
	return &out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, pharmacyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.licenses[pharmacyID]; !ok {
		return ErrNotFound
	}
	delete(s.licenses, pharmacyID)
	// Cascade to owner accounts, mirroring the SQLite foreign key.
	for id, u := range s.users {
		if u.PharmacyID == pharmacyID {
			delete(s.users, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	stored := *u
	stored.CreatedAt = time.Now().UTC()
	s.users[u.ID] = stored
	return nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := u
	return &out, nil
}
