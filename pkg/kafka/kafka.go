// Package kafka carries order events over Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/config"
	"storefront/internal/events"
)

const (
	transport = "kafka"

	headerPattern   = "pattern"
	headerMessageID = "message-id"
)

// Writer is the subset of *kafkago.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Reader is the subset of *kafkago.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes messages to one topic, keyed by aggregate so that events
// of the same order keep their relative order.
type Publisher struct {
	writer Writer
}

// NewPublisher builds a Publisher writing to cfg.Topic.
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	return NewPublisherWithWriter(&kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func NewPublisherWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, msg events.Message) error {
	headers := []kafkago.Header{
		{Key: headerPattern, Value: []byte(msg.Type)},
		{Key: headerMessageID, Value: []byte(msg.ID)},
	}
	for k, v := range msg.Headers {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Body,
		Headers: headers,
	})
	if err != nil {
		return &apperrors.PublishError{Transport: transport, Err: err}
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Consumer reads a topic as part of a consumer group and commits each
// message only after its handler succeeded.
type Consumer struct {
	reader     Reader
	logger     *zap.Logger
	retries    uint64
	newBackOff func() backoff.BackOff
}

// NewConsumer builds a group consumer for cfg.Topic. A failing message is
// retried up to retries times before the consumer gives up.
func NewConsumer(cfg config.KafkaConfig, retries uint64, logger *zap.Logger) *Consumer {
	return NewConsumerWithReader(kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Sugar().Errorf("kafka reader: "+msg, args...)
		}),
	}), retries, logger)
}

func NewConsumerWithReader(r Reader, retries uint64, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  logger,
		retries: retries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// Run consumes until ctx is done. It returns an error, leaving the offset
// uncommitted, when a message still fails after all retries so that it is
// redelivered on restart.
func (c *Consumer) Run(ctx context.Context, handler events.HandlerFunc) error {
	c.logger.Info("kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}

		policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.retries), ctx)
		err = backoff.RetryNotify(
			func() error { return handler(ctx, msg.Value, headers) },
			policy,
			func(err error, wait time.Duration) {
				c.logger.Warn("message processing failed, retrying",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Duration("wait", wait),
					zap.Error(err),
				)
			},
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("giving up on message at partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
