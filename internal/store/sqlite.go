package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on an embedded SQLite database. WAL mode
// plus a busy timeout give the per-pharmacy serialization the authority
// relies on; total_paid is only ever changed through an in-place SQL
// increment so concurrent renewals cannot lose payments.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at databasePath
// and applies pending migrations.
func OpenSQLite(databasePath string) (*SQLiteStore, error) {
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Ping verifies the database connection is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		var applied int
		err := s.conn.QueryRow("SELECT COUNT(*) FROM migrations WHERE filename = ?", file).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (filename) VALUES (?)", file); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", file, err)
		}
	}
	return nil
}

const licenseColumns = `pharmacy_id, name, is_active, license_started_at, license_expires_at,
	license_no, bound_machine_id, subscription_fee, total_paid, created_at, updated_at`

func scanLicense(row *sql.Row) (*LicenseRecord, error) {
	var rec LicenseRecord
	var id string
	err := row.Scan(&id, &rec.Name, &rec.IsActive, &rec.LicenseStarted, &rec.LicenseExpires,
		&rec.LicenseNo, &rec.BoundMachineID, &rec.SubscriptionFee, &rec.TotalPaid,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan license record: %w", err)
	}
	rec.PharmacyID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid pharmacy id in database: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, pharmacyID uuid.UUID) (*LicenseRecord, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM pharmacies WHERE pharmacy_id = ?`, pharmacyID.String())
	return scanLicense(row)
}

func (s *SQLiteStore) Create(ctx context.Context, rec *LicenseRecord) error {
	now := time.Now().UTC()
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO pharmacies (`+licenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PharmacyID.String(), rec.Name, rec.IsActive, rec.LicenseStarted, rec.LicenseExpires,
		rec.LicenseNo, rec.BoundMachineID, rec.SubscriptionFee, rec.TotalPaid, now, now)
	if err != nil {
		return fmt.Errorf("failed to create pharmacy: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, pharmacyID uuid.UUID, mut LicenseMutation) (*LicenseRecord, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if mut.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *mut.IsActive)
	}
	if mut.LicenseStarted != nil {
		sets = append(sets, "license_started_at = ?")
		args = append(args, *mut.LicenseStarted)
	}
	if mut.LicenseExpires != nil {
		sets = append(sets, "license_expires_at = ?")
		args = append(args, *mut.LicenseExpires)
	}
	if mut.LicenseNo != nil {
		sets = append(sets, "license_no = ?")
		args = append(args, *mut.LicenseNo)
	}
	if mut.BoundMachineID != nil {
		sets = append(sets, "bound_machine_id = ?")
		args = append(args, *mut.BoundMachineID)
	}
	if mut.PaidAmount != 0 {
		// Atomic increment, never read-modify-write.
		sets = append(sets, "total_paid = total_paid + ?")
		args = append(args, mut.PaidAmount)
	}
	args = append(args, pharmacyID.String())

	res, err := s.conn.ExecContext(ctx,
		`UPDATE pharmacies SET `+strings.Join(sets, ", ")+` WHERE pharmacy_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update pharmacy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, pharmacyID)
}

func (s *SQLiteStore) Delete(ctx context.Context, pharmacyID uuid.UUID) error {
	// ON DELETE CASCADE on users keeps the purge atomic in one statement.
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM pharmacies WHERE pharmacy_id = ?`, pharmacyID.String())
	if err != nil {
		return fmt.Errorf("failed to delete pharmacy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	var pharmacyID any
	if u.PharmacyID != uuid.Nil {
		pharmacyID = u.PharmacyID.String()
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (id, pharmacy_id, email, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID.String(), pharmacyID, strings.ToLower(u.Email), u.PasswordHash, u.Role,
		time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var id string
	var pharmacyID sql.NullString
	err := row.Scan(&id, &pharmacyID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid user id in database: %w", err)
	}
	if pharmacyID.Valid {
		if u.PharmacyID, err = uuid.Parse(pharmacyID.String); err != nil {
			return nil, fmt.Errorf("invalid pharmacy id in database: %w", err)
		}
	}
	return &u, nil
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, pharmacy_id, email, password_hash, role, created_at
		 FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

func (s *SQLiteStore) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, pharmacy_id, email, password_hash, role, created_at
		 FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}
