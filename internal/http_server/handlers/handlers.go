// Package handlers holds what the endpoint packages share.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/auth"
	resp "account_service/internal/lib/api/response"
	"account_service/internal/lib/logger/sl"

	"github.com/go-chi/render"
)

// RequestTimeout bounds the service call made by a single request.
const RequestTimeout = 5 * time.Second

type EmailData struct {
	Email string `json:"email"`
}

// RenderAuthError maps an auth service error onto the response envelope.
func RenderAuthError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		vErr *auth.ValidationError
		uErr *auth.UnverifiedAccountError
	)

	switch {
	case errors.As(err, &vErr):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error(vErr.Message))
	case errors.As(err, &uErr):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, resp.ErrorWithData(
			"Account not verified. Please check your email.",
			EmailData{Email: uErr.Email},
		))
	case errors.Is(err, auth.ErrAlreadyRegistered):
		badRequest(w, r, "User already registered and verified.")
	case errors.Is(err, auth.ErrOTPAlreadySent):
		badRequest(w, r, "OTP already sent. Please check your email.")
	case errors.Is(err, auth.ErrNoPendingRegistration):
		badRequest(w, r, "No pending registration for this email.")
	case errors.Is(err, auth.ErrInvalidOTP):
		badRequest(w, r, "Invalid OTP.")
	case errors.Is(err, auth.ErrAlreadyVerified):
		badRequest(w, r, "User already verified.")
	case errors.Is(err, auth.ErrInvalidCredentials):
		badRequest(w, r, "Invalid credentials.")
	case errors.Is(err, auth.ErrDispatch):
		log.Error("otp dispatch failed", sl.Err(err))

		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, resp.Error("Failed to send OTP email. Please try again."))
	default:
		InternalError(w, r, log, err)
	}
}

func InternalError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	log.Error("internal error", sl.Err(err))

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, resp.Error("Internal error"))
}

func DecodeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	log.Info("failed to decode request body", sl.Err(err))

	badRequest(w, r, "Failed to decode request")
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, resp.Error(msg))
}
