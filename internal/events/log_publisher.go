package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes messages to the logger instead of a broker. It backs
// the "log" broker setting used for local runs.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info("event published",
		zap.String("message_id", msg.ID),
		zap.String("type", msg.Type),
		zap.String("key", msg.Key),
		zap.ByteString("body", msg.Body),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
