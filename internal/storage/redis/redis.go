package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "account:pending:"

// createScript inserts the hash only when the key is absent (check-and-insert).
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
local ttl = tonumber(ARGV[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`)

var incrementScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

var replaceOTPScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "otp", ARGV[2], "attempts", "0", "expires_at", ARGV[3])
local ttl = tonumber(ARGV[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return 1
`)

// PendingStore keeps pending registrations as redis hashes; expiry is left
// to redis when a ttl is configured.
type PendingStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func New(ctx context.Context, addr, pass string, db int, ttl time.Duration) (*PendingStore, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewFromClient(client, ttl), nil
}

func NewFromClient(client *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// * Create stores p unless an entry for the same email already exists
func (r *PendingStore) Create(ctx context.Context, p models.PendingRegistration) error {
	const op = "storage.redis.Create"

	now := r.now()

	created, err := createScript.Run(ctx, r.client, []string{key(p.Email)},
		r.ttl.Milliseconds(),
		"first_name", p.FirstName,
		"last_name", p.LastName,
		"email", p.Email,
		"pass_hash", string(p.PassHash),
		"otp", p.OTP,
		"attempts", "0",
		"created_at", strconv.FormatInt(now.UnixMilli(), 10),
		"expires_at", r.deadline(now),
	).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if created == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrPendingExists)
	}

	return nil
}

func (r *PendingStore) Get(ctx context.Context, email string) (models.PendingRegistration, error) {
	const op = "storage.redis.Get"

	fields, err := r.client.HGetAll(ctx, key(email)).Result()
	if err != nil {
		return models.PendingRegistration{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(fields) == 0 {
		return models.PendingRegistration{}, fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	p, err := decode(fields)
	if err != nil {
		return models.PendingRegistration{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *PendingStore) ReplaceOTP(ctx context.Context, email, code string) error {
	const op = "storage.redis.ReplaceOTP"

	replaced, err := replaceOTPScript.Run(ctx, r.client, []string{key(email)},
		r.ttl.Milliseconds(), code, r.deadline(r.now()),
	).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if replaced == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	return nil
}

func (r *PendingStore) IncrementAttempts(ctx context.Context, email string) (int, error) {
	const op = "storage.redis.IncrementAttempts"

	n, err := incrementScript.Run(ctx, r.client, []string{key(email)}).Int()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	return n, nil
}

func (r *PendingStore) Delete(ctx context.Context, email string) error {
	const op = "storage.redis.Delete"

	n, err := r.client.Del(ctx, key(email)).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	return nil
}

// * Close closes the redis connection.
func (r *PendingStore) Close() error {
	return r.client.Close()
}

func (r *PendingStore) deadline(now time.Time) string {
	if r.ttl <= 0 {
		return "0"
	}

	return strconv.FormatInt(now.Add(r.ttl).UnixMilli(), 10)
}

func key(email string) string {
	return keyPrefix + email
}

func decode(fields map[string]string) (models.PendingRegistration, error) {
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return models.PendingRegistration{}, fmt.Errorf("bad attempts field: %w", err)
	}

	createdAt, err := millis(fields["created_at"])
	if err != nil {
		return models.PendingRegistration{}, fmt.Errorf("bad created_at field: %w", err)
	}

	expiresAt, err := millis(fields["expires_at"])
	if err != nil {
		return models.PendingRegistration{}, fmt.Errorf("bad expires_at field: %w", err)
	}

	return models.PendingRegistration{
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Email:     fields["email"],
		PassHash:  []byte(fields["pass_hash"]),
		OTP:       fields["otp"],
		Attempts:  attempts,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

func millis(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty")
	}

	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	if ms == 0 {
		return time.Time{}, nil
	}

	return time.UnixMilli(ms), nil
}
