package services

import (
	"context"
	"errors"
	"fmt"

	"workshops/internal/config"
	"workshops/internal/models"
	"workshops/internal/templates"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// ErrEmailNotConfigured is returned when no SendGrid API key is set.
var ErrEmailNotConfigured = errors.New("email delivery is not configured")

const sendEndpoint = "/v3/mail/send"

type EmailService struct {
	apiKey    string
	host      string
	fromEmail string
	fromName  string
	logger    *zap.Logger
}

func NewEmailService(cfg config.EmailConfig, logger *zap.Logger) *EmailService {
	return &EmailService{
		apiKey:    cfg.APIKey,
		host:      cfg.Host,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger.Named("email"),
	}
}

// Send delivers one HTML email. It implements reminders.EmailSender.
func (s *EmailService) Send(ctx context.Context, to, subject, htmlBody string) error {
	return s.sendFrom(ctx, s.fromName, s.fromEmail, to, subject, htmlBody)
}

// sendFrom sends with an explicit sender identity; empty values fall back to
// the configured ones.
func (s *EmailService) sendFrom(ctx context.Context, fromName, fromEmail, to, subject, htmlBody string) error {
	if s.apiKey == "" {
		s.logger.Warn("SendGrid API key not configured, skipping email", zap.String("to", to))
		return ErrEmailNotConfigured
	}
	if fromName == "" {
		fromName = s.fromName
	}
	if fromEmail == "" {
		fromEmail = s.fromEmail
	}

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", to))

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(fromName, fromEmail))
	message.Subject = subject
	message.AddPersonalizations(personalization)
	message.AddContent(mail.NewContent("text/html", htmlBody))

	// A client per send: sendgrid.Client keeps the request body on itself
	request := sendgrid.GetRequest(s.apiKey, sendEndpoint, s.host)
	request.Method = "POST"
	client := &sendgrid.Client{Request: request}

	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("failed to send email to %s: %d", to, response.StatusCode)
	}

	s.logger.Debug("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// SendRegistrationEmail confirms a completed checkout to the user.
func (s *EmailService) SendRegistrationEmail(ctx context.Context, settings models.GlobalReminderSettings, user *models.User, w *models.Workshop) error {
	if !settings.SendConfirmation {
		return nil
	}

	body, err := templates.RegistrationConfirmed(templates.WorkshopEmail{
		RecipientName:  user.Name,
		WorkshopTitle:  w.Title,
		InstructorName: w.InstructorName,
		StartsAt:       w.DateTime,
		SenderName:     settings.SenderName,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Registration Confirmed: %s", w.Title)
	return s.sendFrom(ctx, settings.SenderName, settings.SenderEmail, user.Email, subject, body)
}

// SendTestEmail checks the delivery configuration end to end.
func (s *EmailService) SendTestEmail(ctx context.Context, settings models.GlobalReminderSettings, to string) error {
	body, err := templates.Test(settings.SenderName)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Test Email from %s", settings.SenderName)
	return s.sendFrom(ctx, settings.SenderName, settings.SenderEmail, to, subject, body)
}
