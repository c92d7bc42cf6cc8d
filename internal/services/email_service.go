package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"moderation-api/pkg/logger"
)

// EmailService defines the outbound notification surface. Account flows call
// these fire-and-forget; a failed send is logged, never surfaced to clients.
type EmailService interface {
	SendLoginNotification(ctx context.Context, email, username string, at time.Time) error
	SendConfirmationEmail(ctx context.Context, email, username, token string) error
	SendMaxAttemptsNotification(ctx context.Context, email, username string) error
	SendPasswordResetEmail(ctx context.Context, email, username, token string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

func NewAWSSESEmailService(region, fromAddress, baseURL string, log *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      log,
	}, nil
}

func (s *AWSSESEmailService) SendLoginNotification(ctx context.Context, email, username string, at time.Time) error {
	subject := "New login to your account"
	text := fmt.Sprintf(`Hi %s,

A new login to your account was recorded at %s (UTC).

If this was you, no action is needed. If you do not recognize this login,
reset your password immediately.
`, username, at.UTC().Format(time.RFC1123))

	return s.send(ctx, email, subject, text)
}

func (s *AWSSESEmailService) SendConfirmationEmail(ctx context.Context, email, username, token string) error {
	link := fmt.Sprintf("%s/v2/auth/confirm-email?token=%s", s.baseURL, token)
	subject := "Confirm your email address"
	text := fmt.Sprintf(`Hi %s,

Thank you for creating an account. Please confirm your email address by
opening the link below:

%s

The link expires in 1 hour. If you did not sign up, you can ignore this
email.
`, username, link)

	return s.send(ctx, email, subject, text)
}

func (s *AWSSESEmailService) SendMaxAttemptsNotification(ctx context.Context, email, username string) error {
	subject := "Too many failed login attempts"
	text := fmt.Sprintf(`Hi %s,

The maximum number of failed login attempts for your account has been
reached. Further logins are blocked until the cooldown period passes.

If this was not you, someone may be trying to guess your password.
`, username)

	return s.send(ctx, email, subject, text)
}

func (s *AWSSESEmailService) SendPasswordResetEmail(ctx context.Context, email, username, token string) error {
	link := fmt.Sprintf("%s/v2/auth/reset-password?token=%s", s.baseURL, token)
	subject := "Reset your password"
	text := fmt.Sprintf(`Hi %s,

A password reset was requested for your account. Open the link below to
choose a new password:

%s

The link expires in 20 minutes. If you did not request a reset, you can
ignore this email and your password will stay unchanged.
`, username, link)

	return s.send(ctx, email, subject, text)
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", logger.SanitizedEmail(to)),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", logger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
