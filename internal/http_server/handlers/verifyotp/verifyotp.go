package verifyotp

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

type Request struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type Verifier interface {
	VerifyOTP(ctx context.Context, email, code string) (auth.Session, error)
}

func New(log *slog.Logger, svc Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyotp.New"

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

		session, err := svc.VerifyOTP(ctx, req.Email, req.OTP)
		if err != nil {
			handlers.RenderAuthError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OKWithData("OTP verified. Account created.", session))
	}
}
