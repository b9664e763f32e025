package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"account_service/internal/lib/jwt"
	"account_service/internal/lib/keylock"
	"account_service/internal/lib/logger/sl"
	"account_service/internal/lib/otp"
	"account_service/internal/lib/verification"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyRegistered     = errors.New("user already registered and verified")
	ErrOTPAlreadySent        = errors.New("otp already sent")
	ErrNoPendingRegistration = errors.New("no pending registration")
	ErrInvalidOTP            = errors.New("invalid otp")
	ErrAlreadyVerified       = errors.New("user already verified")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountNotVerified    = errors.New("account not verified")
	ErrDispatch              = errors.New("failed to dispatch otp")
)

// ValidationError is returned for malformed or missing input. Message is safe
// to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UnverifiedAccountError carries the email so the client can offer re-verification.
type UnverifiedAccountError struct {
	Email string
}

func (e *UnverifiedAccountError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAccountNotVerified, e.Email)
}

func (e *UnverifiedAccountError) Is(target error) bool {
	return target == ErrAccountNotVerified
}

type AccountStore interface {
	SaveAccount(ctx context.Context, acc models.Account) (models.Account, error)
	Account(ctx context.Context, email string) (models.Account, error)
	MarkVerified(ctx context.Context, id string, passHash []byte) (models.Account, error)
}

// PendingStore must make Create an atomic check-and-insert.
type PendingStore interface {
	Create(ctx context.Context, p models.PendingRegistration) error
	Get(ctx context.Context, email string) (models.PendingRegistration, error)
	ReplaceOTP(ctx context.Context, email, code string) error
	IncrementAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
}

// Recorder counts auth outcomes; see internal/metrics.
type Recorder interface {
	Record(operation, result string)
}

const maxPasswordBytes = 72

type Config struct {
	TokenSecret    string
	TokenTTL       time.Duration
	BcryptCost     int
	MaxOTPAttempts int
}

// Session is what a successful verify or login hands back to the client.
type Session struct {
	Token string             `json:"token"`
	User  models.AccountView `json:"user"`
}

type SignupInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

type Auth struct {
	log      *slog.Logger
	accounts AccountStore
	pending  PendingStore
	pub      verification.Publisher
	cfg      Config
	validate *validator.Validate
	locks    *keylock.Locker
	recorder Recorder

	now         func() time.Time
	generateOTP func() (string, error)
}

type Option func(a *Auth)

func WithRecorder(r Recorder) Option {
	return func(a *Auth) {
		a.recorder = r
	}
}

func New(
	log *slog.Logger,
	accounts AccountStore,
	pending PendingStore,
	pub verification.Publisher,
	cfg Config,
	opts ...Option,
) *Auth {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	a := &Auth{
		log:         log,
		accounts:    accounts,
		pending:     pending,
		pub:         pub,
		cfg:         cfg,
		validate:    validator.New(),
		locks:       keylock.New(),
		now:         time.Now,
		generateOTP: otp.Generate,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// * Signup stores a pending registration and sends its OTP to the email.
func (a *Auth) Signup(ctx context.Context, in SignupInput) (err error) {
	const op = "auth.Signup"

	log := a.log.With(slog.String("op", op))
	defer func() { a.record("signup", err) }()

	if err := a.validateSignup(in); err != nil {
		return err
	}

	unlock := a.locks.Lock(in.Email)
	defer unlock()

	acc, err := a.accounts.Account(ctx, in.Email)
	switch {
	case err == nil && acc.Verified:
		log.Info("account already registered")
		return ErrAlreadyRegistered
	case err != nil && !errors.Is(err, storage.ErrAccountNotFound):
		log.Error("failed to get account", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := a.pending.Get(ctx, in.Email); err == nil {
		return ErrOTPAlreadySent
	} else if !errors.Is(err, storage.ErrPendingNotFound) {
		log.Error("failed to get pending registration", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cfg.BcryptCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	code, err := a.generateOTP()
	if err != nil {
		log.Error("failed to generate otp", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = a.pending.Create(ctx, models.PendingRegistration{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		PassHash:  passHash,
		OTP:       code,
	})
	if err != nil {
		if errors.Is(err, storage.ErrPendingExists) {
			return ErrOTPAlreadySent
		}

		log.Error("failed to save pending registration", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := verification.SendOTP(ctx, log, a.pub, in.Email, code); err != nil {
		// drop the entry so the email can sign up again; a mail that still
		// arrives after a timeout carries a code no entry accepts
		if delErr := a.pending.Delete(context.WithoutCancel(ctx), in.Email); delErr != nil {
			log.Error("failed to roll back pending registration", sl.Err(delErr))
		}

		return fmt.Errorf("%s: %w: %w", op, ErrDispatch, err)
	}

	log.Info("pending registration created")

	return nil
}

// * VerifyOTP promotes the pending registration into a verified account.
func (a *Auth) VerifyOTP(ctx context.Context, email, code string) (_ Session, err error) {
	const op = "auth.VerifyOTP"

	log := a.log.With(slog.String("op", op))
	defer func() { a.record("verify_otp", err) }()

	if email == "" || code == "" {
		return Session{}, &ValidationError{Message: "Email and OTP are required."}
	}

	unlock := a.locks.Lock(email)
	defer unlock()

	p, err := a.pending.Get(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrPendingNotFound) {
			return Session{}, ErrNoPendingRegistration
		}

		log.Error("failed to get pending registration", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	if subtle.ConstantTimeCompare([]byte(p.OTP), []byte(code)) != 1 {
		a.countFailedAttempt(ctx, log, email)
		return Session{}, ErrInvalidOTP
	}

	acc, err := a.accounts.Account(ctx, email)
	switch {
	case err == nil && acc.Verified:
		return Session{}, ErrAlreadyVerified
	case err == nil:
		acc, err = a.accounts.MarkVerified(ctx, acc.ID, p.PassHash)
		if err != nil {
			log.Error("failed to mark account verified", sl.Err(err))
			return Session{}, fmt.Errorf("%s: %w", op, err)
		}
	case errors.Is(err, storage.ErrAccountNotFound):
		acc, err = a.accounts.SaveAccount(ctx, models.Account{
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			PassHash:  p.PassHash,
			Verified:  true,
		})
		if err != nil {
			log.Error("failed to save account", sl.Err(err))
			return Session{}, fmt.Errorf("%s: %w", op, err)
		}
	default:
		log.Error("failed to get account", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.pending.Delete(ctx, email); err != nil && !errors.Is(err, storage.ErrPendingNotFound) {
		log.Error("failed to delete pending registration", sl.Err(err))
	}

	session, err := a.issue(acc)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account verified", slog.String("account_id", acc.ID))

	return session, nil
}

// * ResendOTP replaces the code of an existing pending registration and sends it again.
func (a *Auth) ResendOTP(ctx context.Context, email string) (err error) {
	const op = "auth.ResendOTP"

	log := a.log.With(slog.String("op", op))
	defer func() { a.record("resend_otp", err) }()

	if email == "" {
		return &ValidationError{Message: "Email is required."}
	}

	if a.validate.Var(email, "email") != nil {
		return &ValidationError{Message: "Invalid email format."}
	}

	unlock := a.locks.Lock(email)
	defer unlock()

	if _, err := a.pending.Get(ctx, email); err != nil {
		if errors.Is(err, storage.ErrPendingNotFound) {
			return ErrNoPendingRegistration
		}

		log.Error("failed to get pending registration", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	code, err := a.generateOTP()
	if err != nil {
		log.Error("failed to generate otp", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.pending.ReplaceOTP(ctx, email, code); err != nil {
		if errors.Is(err, storage.ErrPendingNotFound) {
			return ErrNoPendingRegistration
		}

		log.Error("failed to replace otp", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := verification.SendOTP(ctx, log, a.pub, email, code); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrDispatch, err)
	}

	log.Info("otp resent")

	return nil
}

// * Login checks the credentials and issues a session token for a verified account.
func (a *Auth) Login(ctx context.Context, email, password string) (_ Session, err error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))
	defer func() { a.record("login", err) }()

	if email == "" || password == "" {
		return Session{}, &ValidationError{Message: "Email and password are required."}
	}

	if a.validate.Var(email, "email") != nil {
		return Session{}, &ValidationError{Message: "Invalid email format."}
	}

	acc, err := a.accounts.Account(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Info("account not found")
			return Session{}, ErrInvalidCredentials
		}

		log.Error("failed to get account", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(acc.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return Session{}, ErrInvalidCredentials
	}

	if !acc.Verified {
		return Session{}, &UnverifiedAccountError{Email: acc.Email}
	}

	session, err := a.issue(acc)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account logged in", slog.String("account_id", acc.ID))

	return session, nil
}

// validateSignup applies the checks in a fixed order; the first failure wins.
func (a *Auth) validateSignup(in SignupInput) error {
	for _, field := range []string{in.FirstName, in.LastName, in.Email, in.Password, in.ConfirmPassword} {
		if a.validate.Var(field, "required") != nil {
			return &ValidationError{Message: "All fields are required."}
		}
	}

	if a.validate.Var(in.Email, "email") != nil {
		return &ValidationError{Message: "Invalid email format."}
	}

	if a.validate.Var(in.Password, "min=6") != nil {
		return &ValidationError{Message: "Password must be at least 6 characters."}
	}

	// bcrypt input limit, counted in bytes
	if len(in.Password) > maxPasswordBytes {
		return &ValidationError{Message: "Password must be at most 72 bytes."}
	}

	if a.validate.VarWithValue(in.Password, in.ConfirmPassword, "eqfield") != nil {
		return &ValidationError{Message: "Passwords do not match."}
	}

	return nil
}

// countFailedAttempt discards the pending entry once the attempt limit is hit.
func (a *Auth) countFailedAttempt(ctx context.Context, log *slog.Logger, email string) {
	if a.cfg.MaxOTPAttempts <= 0 {
		return
	}

	n, err := a.pending.IncrementAttempts(ctx, email)
	if err != nil {
		log.Error("failed to count otp attempt", sl.Err(err))
		return
	}

	if n < a.cfg.MaxOTPAttempts {
		return
	}

	log.Warn("otp attempt limit reached", slog.Int("attempts", n))

	if err := a.pending.Delete(ctx, email); err != nil && !errors.Is(err, storage.ErrPendingNotFound) {
		log.Error("failed to delete pending registration", sl.Err(err))
	}
}

func (a *Auth) issue(acc models.Account) (Session, error) {
	token, err := jwt.NewToken(acc.ID, a.cfg.TokenSecret, a.cfg.TokenTTL, a.now())
	if err != nil {
		return Session{}, err
	}

	return Session{Token: token, User: acc.View()}, nil
}

func (a *Auth) record(operation string, err error) {
	if a.recorder == nil {
		return
	}

	a.recorder.Record(operation, Result(err))
}

// Result classifies err into a short label for metrics.
func Result(err error) string {
	var vErr *ValidationError

	switch {
	case err == nil:
		return "success"
	case errors.As(err, &vErr):
		return "invalid_input"
	case errors.Is(err, ErrDispatch):
		return "dispatch_error"
	case errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrOTPAlreadySent),
		errors.Is(err, ErrAlreadyVerified):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidOTP),
		errors.Is(err, ErrNoPendingRegistration):
		return "rejected"
	case errors.Is(err, ErrAccountNotVerified):
		return "unverified"
	default:
		return "error"
	}
}
