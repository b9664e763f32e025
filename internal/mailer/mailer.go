// Package mailer delivers OTP messages by SMTP.
package mailer

import (
	"context"
	"fmt"

	"account_service/internal/models"

	"gopkg.in/gomail.v2"
)

const otpSubject = "Your verification code"

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	from   string
	sender sender
}

// New builds an SMTP mailer. An empty from falls back to username.
func New(host string, port int, username, password, from string) *Mailer {
	if from == "" {
		from = username
	}

	return &Mailer{
		from:   from,
		sender: gomail.NewDialer(host, port, username, password),
	}
}

// * SendMessage implements verification.Publisher.
func (m *Mailer) SendMessage(ctx context.Context, msg models.Message) error {
	const op = "mailer.SendMessage"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	mail, err := m.build(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// DialAndSend cannot be cancelled; once ctx is done the mail may still go out.
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.sender.DialAndSend(mail)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

func (m *Mailer) build(msg models.Message) (*gomail.Message, error) {
	if msg.Email == "" {
		return nil, fmt.Errorf("empty recipient")
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetHeader("To", msg.Email)

	switch msg.Purpose {
	case models.PurposeOTP, "":
		mail.SetHeader("Subject", otpSubject)
		mail.SetBody("text/plain", fmt.Sprintf("Your verification code is %s\n", msg.Code))
	default:
		return nil, fmt.Errorf("unknown message purpose %q", msg.Purpose)
	}

	return mail, nil
}
