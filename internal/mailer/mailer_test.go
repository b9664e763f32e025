package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"account_service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeSender struct {
	sent  []*gomail.Message
	err   error
	block chan struct{}
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestMailer_SendMessage(t *testing.T) {
	fs := &fakeSender{}
	m := &Mailer{from: "noreply@x.com", sender: fs}

	err := m.SendMessage(context.Background(), models.Message{Email: "a@x.com", Code: "123456", Purpose: models.PurposeOTP})
	require.NoError(t, err)
	require.Len(t, fs.sent, 1)

	var buf bytes.Buffer
	_, err = fs.sent[0].WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "To: a@x.com")
	assert.Contains(t, raw, "From: noreply@x.com")
	assert.Contains(t, raw, "Subject: "+otpSubject)
	assert.Contains(t, raw, "123456")
}

func TestMailer_SendMessage_Errors(t *testing.T) {
	boom := errors.New("dial failed")
	m := &Mailer{from: "noreply@x.com", sender: &fakeSender{err: boom}}

	err := m.SendMessage(context.Background(), models.Message{Email: "a@x.com", Code: "1"})
	assert.ErrorIs(t, err, boom)

	err = m.SendMessage(context.Background(), models.Message{Code: "1"})
	assert.Error(t, err)

	err = m.SendMessage(context.Background(), models.Message{Email: "a@x.com", Purpose: "reset"})
	assert.Error(t, err)
}

func TestMailer_SendMessage_ContextDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	m := &Mailer{from: "noreply@x.com", sender: &fakeSender{block: block}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.SendMessage(ctx, models.Message{Email: "a@x.com", Code: "1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_FromFallsBackToUsername(t *testing.T) {
	m := New("smtp.x.com", 587, "user@x.com", "pass", "")
	assert.Equal(t, "user@x.com", m.from)
}
