package services

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Mailer sends a plain text email
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender sends a text message to a +263 phone number
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

// LogMailer writes outgoing mail to the log instead of an SMTP server
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("Email queued")
	return nil
}

// LogSMS writes outgoing text messages to the log
type LogSMS struct{}

func (LogSMS) SendSMS(ctx context.Context, phone, text string) error {
	log.Info().Str("phone", phone).Str("text", text).Msg("SMS queued")
	return nil
}
