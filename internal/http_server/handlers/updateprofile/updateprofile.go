package updateprofile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"account_service/internal/http_server/handlers"
	"account_service/internal/images"
	resp "account_service/internal/lib/api/response"
	"account_service/internal/middleware/authn"
	"account_service/internal/models"
	"account_service/internal/users"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// maxBodySize leaves room for base64 overhead on top of images.MaxSize.
const maxBodySize = images.MaxSize*4/3 + 64<<10

// Request is the JSON form; Image is a base64 data URL.
type Request struct {
	About  *string `json:"about" validate:"omitempty,max=500"`
	Mobile *string `json:"mobile" validate:"omitempty,max=32"`
	Image  string  `json:"image"`
}

type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, accountID string, in users.UpdateInput) (models.AccountView, error)
}

func New(log *slog.Logger, validate *validator.Validate, svc ProfileUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.updateprofile.New"

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

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

		in, err := decode(r)
		if err != nil {
			handlers.DecodeError(w, r, log, err)
			return
		}

		if err := validate.Struct(Request{About: in.About, Mobile: in.Mobile}); err != nil {
			var validateErr validator.ValidationErrors
			if !errors.As(err, &validateErr) {
				handlers.InternalError(w, r, log, err)
				return
			}

			log.Info("invalid request", slog.String("error", err.Error()))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), handlers.RequestTimeout)
		defer cancel()

		view, err := svc.UpdateProfile(ctx, accountID, in)
		if err != nil {
			switch {
			case errors.Is(err, users.ErrInvalidImage):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid image data"))
			case errors.Is(err, users.ErrAccountNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			default:
				handlers.InternalError(w, r, log, err)
			}

			return
		}

		render.JSON(w, r, resp.OKWithData("User updated successfully", view))
	}
}

func decode(r *http.Request) (users.UpdateInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(r)
	}

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return users.UpdateInput{}, err
	}

	return users.UpdateInput{
		About:        req.About,
		Mobile:       req.Mobile,
		ImageDataURL: req.Image,
	}, nil
}

func decodeMultipart(r *http.Request) (users.UpdateInput, error) {
	if err := r.ParseMultipartForm(maxBodySize); err != nil {
		return users.UpdateInput{}, err
	}

	var in users.UpdateInput

	if v, ok := r.MultipartForm.Value["about"]; ok && len(v) > 0 {
		in.About = &v[0]
	}

	if v, ok := r.MultipartForm.Value["mobile"]; ok && len(v) > 0 {
		in.Mobile = &v[0]
	}

	if v, ok := r.MultipartForm.Value["image"]; ok && len(v) > 0 {
		in.ImageDataURL = v[0]
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return users.UpdateInput{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return users.UpdateInput{}, err
	}

	in.Upload = &users.Upload{Filename: header.Filename, Data: data}

	return in, nil
}
