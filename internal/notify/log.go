package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to the log instead of delivering them. Used
// when no mail server is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Send(ctx context.Context, msg Message) error {
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "kind", string(msg.Kind), "to", msg.To, "subject", subject)
	logger.DebugContext(ctx, "notification body", "kind", string(msg.Kind), "body", body)
	return nil
}
