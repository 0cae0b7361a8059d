// Package notify delivers one-time codes by email and operator alerts to
// Telegram.
package notify

import (
	"context"
	"fmt"

	mailjet "github.com/mailjet/mailjet-apiv3-go"
	"go.uber.org/zap"
)

const defaultSender = "no-reply@studyroom.app"

// Mailer sends one-time codes through the MailJet API. Without keys it only
// logs, which is what local runs and tests use.
type Mailer struct {
	client *mailjet.Client
	sender string
	logger *zap.Logger
}

func NewMailer(publicKey, privateKey, sender string, logger *zap.Logger) *Mailer {
	if sender == "" {
		sender = defaultSender
	}
	m := &Mailer{sender: sender, logger: logger}
	if publicKey != "" && privateKey != "" {
		m.client = mailjet.NewMailjetClient(publicKey, privateKey)
	}
	return m
}

// SendOTP emails code to the given address.
func (m *Mailer) SendOTP(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.client == nil {
		m.logger.Info("Mail delivery disabled, one-time code not sent", zap.String("email", email))
		return nil
	}

	if _, err := m.client.SendMailV31(otpMessage(m.sender, email, code)); err != nil {
		return fmt.Errorf("send otp mail: %w", err)
	}

	m.logger.Info("One-time code sent", zap.String("email", email))
	return nil
}

func otpMessage(sender, email, code string) *mailjet.MessagesV31 {
	return &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: sender, Name: "Study Room"},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: email}},
		Subject:  "Your verification code",
		TextPart: fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code),
	}}}
}
