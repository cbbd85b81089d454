package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"powerwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventTypeTransition is the envelope type of a mirrored PowerEvent.
const EventTypeTransition = "power.transition"

// EventEnvelope is the JSON body mirrored to the events queue.
type EventEnvelope struct {
	MessageID   string           `json:"message_id"`
	Type        string           `json:"type"`
	PublishedAt time.Time        `json:"published_at"`
	Event       types.PowerEvent `json:"event"`
}

// EventPublisher mirrors persisted transitions to an SQS queue so other
// consumers can follow the power state.
type EventPublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher targeting queueURL.
func NewEventPublisher(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *EventPublisher {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{client: client, queueURL: queueURL, clock: clock, logger: logger}
}

// Publish sends one envelope for event.
func (p *EventPublisher) Publish(ctx context.Context, event types.PowerEvent) error {
	env := EventEnvelope{
		MessageID:   uuid.NewString(),
		Type:        EventTypeTransition,
		PublishedAt: p.clock.Now().UTC(),
		Event:       event,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal event envelope", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeNotifyDelivery, "failed to publish event to "+p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "transition published",
		"message_id", env.MessageID,
		"event_id", event.ID,
		"is_powered", event.IsPowered,
	)
	return nil
}
