// Package sqlite is the single-file credential store used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const accountColumns = `id, email, first_name, last_name, password_hash, verified,
	about, mobile, image, created_at, updated_at`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database at path (":memory:" for a throwaway one) and applies migrations.
func New(ctx context.Context, path string) (*Store, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}

	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

func (s *Store) SaveAccount(ctx context.Context, acc models.Account) (models.Account, error) {
	const op = "storage.sqlite.SaveAccount"

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	now := s.now().UTC()
	acc.CreatedAt, acc.UpdatedAt = now, now

	query := `
		INSERT INTO accounts (id, email, first_name, last_name, password_hash, verified, about, mobile, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	_, err := s.db.ExecContext(ctx, query,
		acc.ID,
		acc.Email,
		acc.FirstName,
		acc.LastName,
		acc.PassHash,
		acc.Verified,
		acc.About,
		acc.Mobile,
		acc.Image,
		now.Format(timeLayout),
		now.Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Account{}, fmt.Errorf("%s: %w", op, storage.ErrAccountExists)
		}

		return models.Account{}, fmt.Errorf("%s: failed to save account: %w", op, err)
	}

	return acc, nil
}

func (s *Store) Account(ctx context.Context, email string) (models.Account, error) {
	const op = "storage.sqlite.Account"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?;`

	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (models.Account, error) {
	const op = "storage.sqlite.AccountByID"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?;`

	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (s *Store) MarkVerified(ctx context.Context, id string, passHash []byte) (models.Account, error) {
	const op = "storage.sqlite.MarkVerified"

	query := `
		UPDATE accounts
		SET password_hash = ?, verified = 1, updated_at = ?
		WHERE id = ?
		RETURNING ` + accountColumns + `;`

	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, passHash, s.now().UTC().Format(timeLayout), id))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.Account, error) {
	const op = "storage.sqlite.UpdateProfile"

	query := `
		UPDATE accounts
		SET about = COALESCE(?, about),
			mobile = COALESCE(?, mobile),
			image = COALESCE(?, image),
			updated_at = ?
		WHERE id = ?
		RETURNING ` + accountColumns + `;`

	row := s.db.QueryRowContext(ctx, query,
		upd.About,
		upd.Mobile,
		upd.Image,
		s.now().UTC().Format(timeLayout),
		id,
	)

	acc, err := scanAccount(row)
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (s *Store) AccountsExcept(ctx context.Context, id string) ([]models.Account, error) {
	const op = "storage.sqlite.AccountsExcept"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id <> ? ORDER BY created_at, id;`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	accounts := make([]models.Account, 0)

	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return accounts, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (models.Account, error) {
	var (
		a                    models.Account
		createdAt, updatedAt string
	)

	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.FirstName,
		&a.LastName,
		&a.PassHash,
		&a.Verified,
		&a.About,
		&a.Mobile,
		&a.Image,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, err
	}

	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return models.Account{}, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}

	if a.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return models.Account{}, fmt.Errorf("bad updated_at %q: %w", updatedAt, err)
	}

	return a, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}

	return false
}
