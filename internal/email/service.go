// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned when no SMTP host, port or sender is set.
var ErrNotConfigured = errors.New("email not configured")

const appName = "SIKAP"

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured reports whether mail can actually be delivered.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// buildHTMLMessage renders a multipart/alternative message with a plain
// text fallback.
func (s *Service) buildHTMLMessage(to []string, subject, textBody, htmlBody string) []byte {
	boundary := "sikap-" + uuid.NewString()

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(textBody)
	msg.WriteString("\r\n\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

// SendHTMLEmail sends an HTML email with a plain text alternative.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	msg := s.buildHTMLMessage(to, subject, textBody, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

// SendPasswordResetEmail mails the reset link for a forgotten password.
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := PasswordResetData{AppName: appName, UserName: userName, ResetURL: resetURL}
	html, err := renderPasswordReset(data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Hi %s,\r\n\r\nOpen this link to reset your %s password. It expires in 1 hour.\r\n\r\n%s", userName, appName, resetURL)
	return s.SendHTMLEmail([]string{to}, "Reset your "+appName+" password", text, html)
}

var passwordResetTemplate = template.Must(template.New("password-reset").Parse(passwordResetEmailTemplate))

func renderPasswordReset(data PasswordResetData) (string, error) {
	var buf bytes.Buffer
	if err := passwordResetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const passwordResetEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>
        body { font-family: Arial, Helvetica, sans-serif; line-height: 1.5; color: #1f2937; max-width: 560px; margin: 0 auto; padding: 24px; }
        .brand { font-size: 20px; font-weight: bold; color: #1d4ed8; margin-bottom: 16px; }
        .button { display: inline-block; padding: 10px 20px; background: #1d4ed8; color: #ffffff; text-decoration: none; border-radius: 6px; }
        .muted { font-size: 12px; color: #6b7280; word-break: break-all; }
    </style>
</head>
<body>
    <div class="brand">{{.AppName}}</div>
    <p>Hi {{.UserName}},</p>
    <p>Someone asked to reset the password for your account. Use the button below to choose a new one.</p>
    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
    <p class="muted">{{.ResetURL}}</p>
    <p>The link expires in 1 hour. If you did not request this, ignore this email and your password stays the same.</p>
</body>
</html>`
