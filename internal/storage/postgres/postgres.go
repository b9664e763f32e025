package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"account_service/internal/config"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

const accountColumns = `id, email, first_name, last_name, password_hash, verified,
	about, mobile, image, created_at, updated_at`

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	return NewWithDSN(ctx, dsn(cfg))
}

// NewWithDSN opens the pool and brings the schema up to date.
func NewWithDSN(ctx context.Context, dsn string) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	r := &PostgresRepo{pool: pool}

	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r, nil
}

func (r *PostgresRepo) migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// * SaveAccount inserts acc. An empty ID is replaced by a fresh UUID.
func (r *PostgresRepo) SaveAccount(ctx context.Context, acc models.Account) (models.Account, error) {
	const op = "storage.postgres.SaveAccount"

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (id, email, first_name, last_name, password_hash, verified, about, mobile, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at;
	`

	err := r.pool.QueryRow(ctx, query,
		acc.ID,
		acc.Email,
		acc.FirstName,
		acc.LastName,
		acc.PassHash,
		acc.Verified,
		acc.About,
		acc.Mobile,
		acc.Image,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Account{}, fmt.Errorf("%s: %w", op, storage.ErrAccountExists)
		}

		return models.Account{}, fmt.Errorf("%s: failed to save account: %w", op, err)
	}

	return acc, nil
}

func (r *PostgresRepo) Account(ctx context.Context, email string) (models.Account, error) {
	const op = "storage.postgres.Account"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1;`

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

func (r *PostgresRepo) AccountByID(ctx context.Context, id string) (models.Account, error) {
	const op = "storage.postgres.AccountByID"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1;`

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

// * MarkVerified sets the verified flag and replaces the password hash.
func (r *PostgresRepo) MarkVerified(ctx context.Context, id string, passHash []byte) (models.Account, error) {
	const op = "storage.postgres.MarkVerified"

	query := `
		UPDATE accounts
		SET password_hash = $2, verified = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns + `;`

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, id, passHash))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

// * UpdateProfile writes the non-nil fields of upd.
func (r *PostgresRepo) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.Account, error) {
	const op = "storage.postgres.UpdateProfile"

	query := `
		UPDATE accounts
		SET about = COALESCE($2, about),
			mobile = COALESCE($3, mobile),
			image = COALESCE($4, image),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns + `;`

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, id, upd.About, upd.Mobile, upd.Image))
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

// * AccountsExcept lists every account but the one with the given id, oldest first.
func (r *PostgresRepo) AccountsExcept(ctx context.Context, id string) ([]models.Account, error) {
	const op = "storage.postgres.AccountsExcept"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id <> $1 ORDER BY created_at, id;`

	rows, err := r.pool.Query(ctx, query, id)
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

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account

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
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, err
	}

	return a, nil
}

// * dsn builds the connection string from the postgres section.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
