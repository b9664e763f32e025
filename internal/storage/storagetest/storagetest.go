// Package storagetest holds the behaviour every credential store backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type AccountStore interface {
	SaveAccount(ctx context.Context, acc models.Account) (models.Account, error)
	Account(ctx context.Context, email string) (models.Account, error)
	AccountByID(ctx context.Context, id string) (models.Account, error)
	MarkVerified(ctx context.Context, id string, passHash []byte) (models.Account, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.Account, error)
	AccountsExcept(ctx context.Context, id string) ([]models.Account, error)
}

// RunAccountStore runs the shared suite; newStore must return an empty store.
func RunAccountStore(t *testing.T, newStore func(t *testing.T) AccountStore) {
	t.Run("SaveAndFetch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		saved, err := s.SaveAccount(ctx, models.Account{
			Email:     "a@x.com",
			FirstName: "Ann",
			LastName:  "Lee",
			PassHash:  []byte("hash"),
			Verified:  true,
		})
		require.NoError(t, err)
		require.NotEmpty(t, saved.ID)
		assert.False(t, saved.CreatedAt.IsZero())

		byEmail, err := s.Account(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, saved.ID, byEmail.ID)
		assert.Equal(t, "Ann", byEmail.FirstName)
		assert.Equal(t, "Lee", byEmail.LastName)
		assert.Equal(t, []byte("hash"), byEmail.PassHash)
		assert.True(t, byEmail.Verified)

		byID, err := s.AccountByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", byID.Email)
	})

	t.Run("EmailIsCaseSensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.SaveAccount(ctx, models.Account{Email: "a@x.com", PassHash: []byte("h")})
		require.NoError(t, err)

		_, err = s.Account(ctx, "A@x.com")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.SaveAccount(ctx, models.Account{Email: "a@x.com", PassHash: []byte("h")})
		require.NoError(t, err)

		_, err = s.SaveAccount(ctx, models.Account{Email: "a@x.com", PassHash: []byte("h2")})
		assert.ErrorIs(t, err, storage.ErrAccountExists)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Account(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		_, err = s.AccountByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		_, err = s.MarkVerified(ctx, "missing", []byte("h"))
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		about := "x"
		_, err = s.UpdateProfile(ctx, "missing", models.ProfileUpdate{About: &about})
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("MarkVerified", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		saved, err := s.SaveAccount(ctx, models.Account{Email: "a@x.com", PassHash: []byte("old")})
		require.NoError(t, err)
		require.False(t, saved.Verified)

		acc, err := s.MarkVerified(ctx, saved.ID, []byte("new"))
		require.NoError(t, err)
		assert.True(t, acc.Verified)
		assert.Equal(t, []byte("new"), acc.PassHash)

		got, err := s.Account(ctx, "a@x.com")
		require.NoError(t, err)
		assert.True(t, got.Verified)
		assert.Equal(t, []byte("new"), got.PassHash)
	})

	t.Run("UpdateProfile", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		saved, err := s.SaveAccount(ctx, models.Account{Email: "a@x.com", PassHash: []byte("h"), Image: "old.png"})
		require.NoError(t, err)

		about, mobile := "hello", "+100"
		acc, err := s.UpdateProfile(ctx, saved.ID, models.ProfileUpdate{About: &about, Mobile: &mobile})
		require.NoError(t, err)
		assert.Equal(t, "hello", acc.About)
		assert.Equal(t, "+100", acc.Mobile)
		assert.Equal(t, "old.png", acc.Image)
		assert.False(t, acc.UpdatedAt.Before(saved.UpdatedAt))

		image := "new.png"
		acc, err = s.UpdateProfile(ctx, saved.ID, models.ProfileUpdate{Image: &image})
		require.NoError(t, err)
		assert.Equal(t, "hello", acc.About)
		assert.Equal(t, "new.png", acc.Image)
	})

	t.Run("AccountsExcept", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
			acc, err := s.SaveAccount(ctx, models.Account{Email: email, PassHash: []byte("h")})
			require.NoError(t, err)
			ids = append(ids, acc.ID)
			time.Sleep(2 * time.Millisecond)
		}

		others, err := s.AccountsExcept(ctx, ids[1])
		require.NoError(t, err)
		require.Len(t, others, 2)
		assert.Equal(t, "a@x.com", others[0].Email)
		assert.Equal(t, "c@x.com", others[1].Email)

		all, err := s.AccountsExcept(ctx, "nobody")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
