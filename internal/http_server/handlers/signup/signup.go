package signup

import (
	"context"
	"log/slog"
	"net/http"

	"account_service/internal/auth"
	"account_service/internal/http_server/handlers"
	resp "account_service/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Request fields are checked by the auth service so the messages keep their order.
type Request struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type Signuper interface {
	Signup(ctx context.Context, in auth.SignupInput) error
}

func New(log *slog.Logger, svc Signuper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signup.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			handlers.DecodeError(w, r, log, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), handlers.RequestTimeout)
		defer cancel()

		err := svc.Signup(ctx, auth.SignupInput{
			FirstName:       req.FirstName,
			LastName:        req.LastName,
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
		})
		if err != nil {
			handlers.RenderAuthError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OK("OTP sent to email. Please verify."))
	}
}
