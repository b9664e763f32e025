package listusers

import (
	"context"
	"log/slog"
	"net/http"

	"account_service/internal/http_server/handlers"
	resp "account_service/internal/lib/api/response"
	"account_service/internal/middleware/authn"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Lister interface {
	ListOthers(ctx context.Context, accountID string) ([]models.AccountView, error)
}

func New(log *slog.Logger, svc Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.listusers.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		accountID, ok := authn.AccountID(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("No token, authorization denied"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), handlers.RequestTimeout)
		defer cancel()

		views, err := svc.ListOthers(ctx, accountID)
		if err != nil {
			handlers.InternalError(w, r, log, err)
			return
		}

		render.JSON(w, r, resp.OKWithData("Users fetched successfully", views))
	}
}
