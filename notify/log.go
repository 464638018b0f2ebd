package notify

import (
	"context"
	"log/slog"
)

// LogSender writes payloads to a logger instead of delivering them. It stands
// in for a real channel in development and tests.
type LogSender struct {
	kind   Kind
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger, kind Kind) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{kind: kind, logger: logger}
}

func (s *LogSender) Kind() Kind { return s.kind }

func (s *LogSender) Send(ctx context.Context, payload any) error {
	s.logger.InfoContext(ctx, "notification",
		slog.String("kind", s.kind.String()),
		slog.Any("payload", payload),
	)
	return nil
}
