package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"account_service/internal/images"
	"account_service/internal/lib/logger/sl"
	"account_service/internal/models"
	"account_service/internal/storage"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidImage    = errors.New("invalid image data")
)

type AccountStore interface {
	AccountByID(ctx context.Context, id string) (models.Account, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.Account, error)
	AccountsExcept(ctx context.Context, id string) ([]models.Account, error)
}

type ImageStore interface {
	Put(ctx context.Context, name string, img images.Image) (string, error)
}

// Upload is an image received as a multipart file.
type Upload struct {
	Filename string
	Data     []byte
}

// UpdateInput carries a profile change. Nil About or Mobile keep the stored
// value. At most one of ImageDataURL and Upload is expected; the data URL wins.
type UpdateInput struct {
	About        *string
	Mobile       *string
	ImageDataURL string
	Upload       *Upload
}

type Users struct {
	log      *slog.Logger
	accounts AccountStore
	images   ImageStore
	now      func() time.Time
}

func New(log *slog.Logger, accounts AccountStore, images ImageStore) *Users {
	return &Users{
		log:      log,
		accounts: accounts,
		images:   images,
		now:      time.Now,
	}
}

// * UpdateProfile stores an optional new image and writes the profile fields.
func (u *Users) UpdateProfile(ctx context.Context, accountID string, in UpdateInput) (models.AccountView, error) {
	const op = "users.UpdateProfile"

	log := u.log.With(slog.String("op", op), slog.String("account_id", accountID))

	upd := models.ProfileUpdate{
		About:  in.About,
		Mobile: in.Mobile,
	}

	img, hasImage, err := decodeImage(in)
	if err != nil {
		log.Info("invalid image", sl.Err(err))
		return models.AccountView{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidImage, err)
	}

	if hasImage {
		if _, err := u.accounts.AccountByID(ctx, accountID); err != nil {
			return models.AccountView{}, u.storageErr(log, op, err)
		}

		url, err := u.images.Put(ctx, images.FileName(accountID, img.Ext, u.now()), img)
		if err != nil {
			log.Error("failed to store image", sl.Err(err))
			return models.AccountView{}, fmt.Errorf("%s: %w", op, err)
		}

		upd.Image = &url
	}

	acc, err := u.accounts.UpdateProfile(ctx, accountID, upd)
	if err != nil {
		return models.AccountView{}, u.storageErr(log, op, err)
	}

	log.Info("profile updated")

	return acc.View(), nil
}

// * ListOthers returns every account except the caller's.
func (u *Users) ListOthers(ctx context.Context, accountID string) ([]models.AccountView, error) {
	const op = "users.ListOthers"

	accounts, err := u.accounts.AccountsExcept(ctx, accountID)
	if err != nil {
		u.log.Error("failed to list accounts", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	views := make([]models.AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, acc.View())
	}

	return views, nil
}

func (u *Users) storageErr(log *slog.Logger, op string, err error) error {
	if errors.Is(err, storage.ErrAccountNotFound) {
		log.Info("account not found")
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}

	log.Error("storage failure", sl.Err(err))

	return fmt.Errorf("%s: %w", op, err)
}

func decodeImage(in UpdateInput) (images.Image, bool, error) {
	switch {
	case in.ImageDataURL != "":
		img, err := images.FromDataURL(in.ImageDataURL)
		return img, true, err
	case in.Upload != nil:
		img, err := images.FromUpload(in.Upload.Filename, in.Upload.Data)
		return img, true, err
	default:
		return images.Image{}, false, nil
	}
}
