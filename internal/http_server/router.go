package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/http_server/handlers"
	"account_service/internal/http_server/handlers/health"
	"account_service/internal/http_server/handlers/listusers"
	"account_service/internal/http_server/handlers/login"
	"account_service/internal/http_server/handlers/resendotp"
	"account_service/internal/http_server/handlers/signup"
	"account_service/internal/http_server/handlers/updateprofile"
	"account_service/internal/http_server/handlers/verifyotp"
	resp "account_service/internal/lib/api/response"
	"account_service/internal/metrics"
	"account_service/internal/middleware/authn"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

type AuthService interface {
	signup.Signuper
	verifyotp.Verifier
	resendotp.Resender
	login.Loginer
}

type UserService interface {
	updateprofile.ProfileUpdater
	listusers.Lister
}

type Deps struct {
	Log         *slog.Logger
	Validate    *validator.Validate
	Auth        AuthService
	Users       UserService
	TokenSecret string

	// optional
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// writeMargin is the time left to write a response once the service call is done.
const writeMargin = time.Second

// WriteTimeout keeps the server write deadline past handlers.RequestTimeout so a
// request that finishes in time still gets its response written.
func WriteTimeout(configured time.Duration) time.Duration {
	return max(configured, handlers.RequestTimeout+writeMargin)
}

// NewRouter mounts the API under /api/auth and /api/users and again at the bare paths.
func NewRouter(d Deps) *chi.Mux {
	if d.Validate == nil {
		d.Validate = validator.New()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Route not found"))
	})

	r.Get("/health", health.New())

	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Registry))
	}

	authRoutes := func(r chi.Router) {
		r.Post("/signup", signup.New(d.Log, d.Auth))
		r.Post("/verify-otp", verifyotp.New(d.Log, d.Auth))
		r.Post("/resend-otp", resendotp.New(d.Log, d.Auth))
		r.Post("/login", login.New(d.Log, d.Auth))
	}

	userRoutes := func(r chi.Router) {
		r.Use(authn.New(d.Log, d.TokenSecret))

		r.Post("/update", updateprofile.New(d.Log, d.Validate, d.Users))
		r.Get("/", listusers.New(d.Log, d.Users))
	}

	r.Route("/api/auth", authRoutes)
	r.Route("/api/users", userRoutes)

	r.Group(authRoutes)
	r.Route("/users", userRoutes)

	return r
}
