package verification

import (
	"context"
	"fmt"
	"log/slog"

	"account_service/internal/models"
)

// Publisher hands a message to the notification channel (SMTP or a queue).
type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// SendOTP dispatches code to email. Publish errors are returned unlogged;
// the caller reports them.
func SendOTP(ctx context.Context, log *slog.Logger, pub Publisher, email, code string) error {
	const op = "verification.SendOTP"

	msg := models.Message{
		Email:   email,
		Code:    code,
		Purpose: models.PurposeOTP,
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("otp sent", slog.String("op", op))

	return nil
}
