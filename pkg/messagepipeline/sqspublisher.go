package messagepipeline

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
)

// SQSSendAPI is the subset of the SQS client used by the publisher.
type SQSSendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher enqueues validated webhook events. The body is the raw webhook
// payload, forwarded verbatim so the worker sees exactly the signed bytes.
type SQSPublisher struct {
	client   SQSSendAPI
	queueURL string
	logger   zerolog.Logger
}

// NewSQSPublisher creates a new SQSPublisher for the given queue.
func NewSQSPublisher(queueURL string, client SQSSendAPI, logger zerolog.Logger) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger.With().Str("component", "SQSPublisher").Logger(),
	}
}

// Publish sends one message with the given string attributes.
func (p *SQSPublisher) Publish(ctx context.Context, body []byte, attributes map[string]string) error {
	msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	p.logger.Debug().Str("msg_id", aws.ToString(out.MessageId)).Msg("Message enqueued.")
	return nil
}
