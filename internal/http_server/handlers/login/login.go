package login

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
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Loginer interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

func New(log *slog.Logger, svc Loginer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		session, err := svc.Login(ctx, req.Email, req.Password)
		if err != nil {
			handlers.RenderAuthError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OKWithData("Login successful.", session))
	}
}
