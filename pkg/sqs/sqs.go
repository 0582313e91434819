// Package sqs publishes order events to an Amazon SQS queue.
package sqs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"go.uber.org/zap"

	"storefront/internal/apperrors"
	"storefront/internal/config"
	"storefront/internal/events"
)

const (
	transport = "sqs"

	attrPattern   = "pattern"
	attrMessageID = "message-id"

	maxMessages     = 10
	waitTimeSeconds = 20
)

// SQSAPI is the subset of *sqs.Client used by Publisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReceiverAPI is the subset of *sqs.Client used by Consumer.
type ReceiverAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// LoadAWSConfig loads the default credential chain for cfg.Region.
func LoadAWSConfig(ctx context.Context, cfg config.SQSConfig) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// NewClient loads AWS configuration and builds an SQS client.
func NewClient(ctx context.Context, cfg config.SQSConfig) (*sqs.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// Publish sends msg with its pattern, id and trace headers as string message attributes.
func (p *Publisher) Publish(ctx context.Context, msg events.Message) error {
	attrs := map[string]sqstypes.MessageAttributeValue{
		attrPattern:   stringAttr(msg.Type),
		attrMessageID: stringAttr(msg.ID),
	}
	for k, v := range msg.Headers {
		attrs[k] = stringAttr(v)
	}

	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return &apperrors.PublishError{Transport: transport, Err: fmt.Errorf("send message: %w", err)}
	}
	return nil
}

func (p *Publisher) Close() error { return nil }

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

// Consumer long-polls a queue and deletes each message once its handler succeeds.
// Failed messages are left in place and reappear after the visibility timeout.
type Consumer struct {
	client   ReceiverAPI
	queueURL string
	logger   *zap.Logger
}

func NewConsumer(client ReceiverAPI, queueURL string, logger *zap.Logger) *Consumer {
	return &Consumer{client: client, queueURL: queueURL, logger: logger}
}

// Run receives messages until ctx is done.
func (c *Consumer) Run(ctx context.Context, handler events.HandlerFunc) error {
	c.logger.Info("waiting for order events", zap.String("queue_url", c.queueURL))
	for {
		if ctx.Err() != nil {
			return nil
		}
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(c.queueURL),
			MaxNumberOfMessages:   maxMessages,
			WaitTimeSeconds:       waitTimeSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to receive messages: %w", err)
		}
		for _, msg := range out.Messages {
			c.handle(ctx, msg, handler)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg sqstypes.Message, handler events.HandlerFunc) {
	messageID := aws.ToString(msg.MessageId)
	if err := handler(ctx, []byte(aws.ToString(msg.Body)), attributeStrings(msg.MessageAttributes)); err != nil {
		c.logger.Warn("message processing failed, leaving for redelivery",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.logger.Error("failed to delete message", zap.String("message_id", messageID), zap.Error(err))
	}
}

func attributeStrings(attrs map[string]sqstypes.MessageAttributeValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}
