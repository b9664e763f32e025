package resendotp

import (
	"context"
	"log/slog"
	"net/http"

	"account_service/internal/http_server/handlers"
	resp "account_service/internal/lib/api/response"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Request struct {
	Email string `json:"email"`
}

type Resender interface {
	ResendOTP(ctx context.Context, email string) error
}

func New(log *slog.Logger, svc Resender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resendotp.New"

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

		if err := svc.ResendOTP(ctx, req.Email); err != nil {
			handlers.RenderAuthError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OK("OTP resent to email. Please verify."))
	}
}
