package messagepipeline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// --- SQS Consumer Implementation ---

// SQSReceiveAPI is the subset of the SQS client used by the consumer.
type SQSReceiveAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConsumerConfig holds configuration for the long-poll receive loop.
type SQSConsumerConfig struct {
	QueueURL string
	// MaxMessages is the batch ceiling per receive call (SQS caps this at 10).
	MaxMessages int32
	// WaitTime bounds each long-poll receive call.
	WaitTime time.Duration
	// PollInterval is the sleep between receive iterations. A receive error
	// waits this same single interval before the next attempt; there is no
	// additional backoff sleep on the error path.
	PollInterval time.Duration
	// DeleteTimeout bounds the DeleteMessage call made on Ack.
	DeleteTimeout time.Duration
}

// LoadDefaultSQSConsumerConfig returns a config with the standard poll settings.
func LoadDefaultSQSConsumerConfig(queueURL string) *SQSConsumerConfig {
	return &SQSConsumerConfig{
		QueueURL:      queueURL,
		MaxMessages:   10,
		WaitTime:      20 * time.Second,
		PollInterval:  5 * time.Second,
		DeleteTimeout: 10 * time.Second,
	}
}

// SQSConsumer receives queued webhook events from SQS and feeds them to the
// pipeline. Ack deletes the message; Nack leaves it in place, so it becomes
// visible again after the visibility window and eventually dead-letters.
// Delivery is at-least-once: a message whose delete fails after successful
// processing will be redelivered, which downstream idempotent writes absorb.
type SQSConsumer struct {
	client     SQSReceiveAPI
	cfg        *SQSConsumerConfig
	logger     zerolog.Logger
	outputChan chan Message
	stopOnce   sync.Once
	cancelFn   context.CancelFunc
	doneChan   chan struct{}
}

// NewSQSConsumer creates a new SQSConsumer.
func NewSQSConsumer(cfg *SQSConsumerConfig, client SQSReceiveAPI, logger zerolog.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:     client,
		cfg:        cfg,
		logger:     logger.With().Str("component", "SQSConsumer").Str("queue_url", cfg.QueueURL).Logger(),
		outputChan: make(chan Message, cfg.MaxMessages),
		doneChan:   make(chan struct{}),
	}
}

// Messages returns the channel pipeline workers receive from.
func (c *SQSConsumer) Messages() <-chan Message { return c.outputChan }

// Start launches the receive loop. It runs until the context is cancelled or
// Stop is called.
func (c *SQSConsumer) Start(ctx context.Context) error {
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelFn = cancel

	go func() {
		defer close(c.outputChan)
		defer close(c.doneChan)
		c.logger.Info().Msg("SQS receive loop started.")
		defer c.logger.Info().Msg("SQS receive loop stopped.")

		for {
			if receiveCtx.Err() != nil {
				return
			}
			c.receiveOnce(receiveCtx)

			select {
			case <-receiveCtx.Done():
				return
			case <-time.After(c.cfg.PollInterval):
			}
		}
	}()
	return nil
}

// receiveOnce performs a single long-poll receive and pushes each delivered
// message to the output channel. Receive errors are logged and absorbed; the
// caller's loop supplies the wait before the next attempt.
func (c *SQSConsumer) receiveOnce(ctx context.Context) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.cfg.QueueURL),
		MaxNumberOfMessages:   c.cfg.MaxMessages,
		WaitTimeSeconds:       int32(c.cfg.WaitTime / time.Second),
		MessageAttributeNames: []string{"All"},
		AttributeNames:        []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName(sqstypes.MessageSystemAttributeNameSentTimestamp)},
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("Error polling queue.")
		}
		return
	}

	if len(out.Messages) > 0 {
		c.logger.Info().Int("count", len(out.Messages)).Msg("Received messages.")
	}

	for _, raw := range out.Messages {
		msg := c.toMessage(raw)
		select {
		case c.outputChan <- msg:
		case <-ctx.Done():
			// Not delivered to a worker; the visibility window returns it.
			return
		}
	}
}

// toMessage converts an SQS message into the pipeline envelope, binding Ack
// to message deletion via the receipt handle.
func (c *SQSConsumer) toMessage(raw sqstypes.Message) Message {
	receipt := aws.ToString(raw.ReceiptHandle)
	id := aws.ToString(raw.MessageId)

	attrs := make(map[string]string, len(raw.MessageAttributes))
	for k, v := range raw.MessageAttributes {
		attrs[k] = aws.ToString(v.StringValue)
	}

	var publishTime time.Time
	if ts, ok := raw.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)]; ok {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			publishTime = time.UnixMilli(ms)
		}
	}

	return Message{
		MessageData: MessageData{
			ID:          id,
			Payload:     []byte(aws.ToString(raw.Body)),
			PublishTime: publishTime,
		},
		Attributes: attrs,
		Ack: func() {
			deleteCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DeleteTimeout)
			defer cancel()
			_, err := c.client.DeleteMessage(deleteCtx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(c.cfg.QueueURL),
				ReceiptHandle: aws.String(receipt),
			})
			if err != nil {
				// The message will be redelivered; the idempotent upsert makes
				// the repeat processing a redundant overwrite.
				c.logger.Error().Err(err).Str("msg_id", id).Msg("Failed to delete message after processing.")
				return
			}
			c.logger.Debug().Str("msg_id", id).Msg("Deleted message from queue.")
		},
		Nack: func() {
			c.logger.Debug().Str("msg_id", id).Msg("Message left for redelivery.")
		},
	}
}

// Stop cancels the receive loop and waits for it to exit.
func (c *SQSConsumer) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping SQS consumer...")
		if c.cancelFn != nil {
			c.cancelFn()
		}
		select {
		case <-c.doneChan:
		case <-ctx.Done():
			c.logger.Error().Msg("Timeout waiting for SQS receive loop to stop.")
		}
	})
	return nil
}

// Done returns a channel closed once the receive loop has fully stopped.
func (c *SQSConsumer) Done() <-chan struct{} { return c.doneChan }
