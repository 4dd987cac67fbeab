// Package notify delivers out-of-band messages (email) to users.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

type Kind string

const (
	KindVerification       Kind = "verification"
	KindNewDeviceAlert     Kind = "new_device_alert"
	KindPasswordChanged    Kind = "password_changed"
	KindEmailChangeRequest Kind = "email_change_request"
	KindEmailChangeNotice  Kind = "email_change_notice"
	KindTwoFactorOTP       Kind = "two_factor_otp"
	KindTwoFactorEnabled   Kind = "two_factor_enabled"
)

type Message struct {
	Kind Kind
	To   string
	Data map[string]any
}

// Notifier sends a message. Callers treat delivery as fire-and-forget.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

var ErrUnknownKind = errors.New("notify: unknown message kind")

type mailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[Kind]mailTemplate{
	KindVerification: {
		subject: "Verify your email address",
		body: template.Must(template.New("verification").Parse(
			"Hi {{.Username}},\n\nUse this code to verify your email address:\n\n{{.Token}}\n\nIt expires in 10 minutes.\n")),
	},
	KindNewDeviceAlert: {
		subject: "New sign-in to your account",
		body: template.Must(template.New("new_device_alert").Parse(
			"Hi {{.Username}},\n\nYour account was accessed from a new device.\n\n" +
				"Device: {{.DeviceType}}\nBrowser: {{.UserAgent}}\nIP address: {{.IPAddress}}\nLocation: {{.Location}}\nTime: {{.LoginTime}}\n\n" +
				"If this wasn't you, change your password and sign out other devices.\n")),
	},
	KindPasswordChanged: {
		subject: "Your password was changed",
		body: template.Must(template.New("password_changed").Parse(
			"Hi {{.Username}},\n\nThe password for your account was changed at {{.ChangedAt}}.\n" +
				"All other sessions have been signed out.\n")),
	},
	KindEmailChangeRequest: {
		subject: "Confirm your new email address",
		body: template.Must(template.New("email_change_request").Parse(
			"Hi {{.Username}},\n\nUse this code to confirm {{.NewEmail}} as your new email address:\n\n{{.Token}}\n\nIt expires in 10 minutes.\n")),
	},
	KindEmailChangeNotice: {
		subject: "Email change requested",
		body: template.Must(template.New("email_change_notice").Parse(
			"Hi {{.Username}},\n\nA request was made to change your account email to {{.NewEmail}}.\n" +
				"If this wasn't you, change your password now.\n")),
	},
	KindTwoFactorOTP: {
		subject: "Your two-factor setup code",
		body: template.Must(template.New("two_factor_otp").Parse(
			"Hi {{.Username}},\n\nYour verification code is {{.Code}}. It expires in 10 minutes.\n")),
	},
	KindTwoFactorEnabled: {
		subject: "Two-factor authentication enabled",
		body: template.Must(template.New("two_factor_enabled").Parse(
			"Hi {{.Username}},\n\nTwo-factor authentication is now enabled on your account.\n")),
	},
}

func lookup(kind Kind) (mailTemplate, error) {
	t, ok := templates[kind]
	if !ok {
		return mailTemplate{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}

// Render returns the subject and plain-text body for msg.
func Render(msg Message) (subject, body string, err error) {
	t, err := lookup(msg.Kind)
	if err != nil {
		return "", "", err
	}
	var sb strings.Builder
	if err := t.body.Execute(&sb, msg.Data); err != nil {
		return "", "", fmt.Errorf("notify: render %s: %w", msg.Kind, err)
	}
	return t.subject, sb.String(), nil
}
