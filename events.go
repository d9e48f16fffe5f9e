package lottery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventType names a round event
type EventType string

const (
	EventRoundActivated EventType = "round.activated"
	EventRoundWon       EventType = "round.won"
)

// Event is an observable round outcome
type Event interface {
	Type() EventType
}

// RoundActivated is emitted when a round opens for sale
type RoundActivated struct {
	RoundID        uint64    `json:"round_id"`
	TicketPrice    uint64    `json:"ticket_price"`
	SaleDeadline   time.Time `json:"sale_deadline"`
	RevealDeadline time.Time `json:"reveal_deadline"`
}

func (RoundActivated) Type() EventType { return EventRoundActivated }

// RoundWon is emitted when the payout settles a round
type RoundWon struct {
	RoundID        uint64        `json:"round_id"`
	Winner         Account       `json:"winner"`
	Prize          uint64        `json:"prize"`
	Commission     uint64        `json:"commission"`
	TicketsIssued  uint64        `json:"tickets_issued"`
	CandidateCount uint64        `json:"candidate_count"`
	Duration       time.Duration `json:"duration"`
	Seed           Hash          `json:"seed"`
	WinningIndex   uint64        `json:"winning_index"`
}

func (RoundWon) Type() EventType { return EventRoundWon }

// EventEnvelope wraps an event for transport
type EventEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes event into an envelope with a fresh id
func NewEventEnvelope(event Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &EventEnvelope{
		EventID:   uuid.New().String(),
		EventType: event.Type(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

// LogEventPublisher writes events as structured log lines
type LogEventPublisher struct {
	entry *log.Entry
}

// NewLogEventPublisher creates a publisher logging through logrus
func NewLogEventPublisher() *LogEventPublisher {
	return &LogEventPublisher{entry: log.WithField("component", "lottery-events")}
}

// Publish logs the event
func (p *LogEventPublisher) Publish(_ context.Context, event Event) error {
	fields := log.Fields{"eventType": event.Type()}
	switch e := event.(type) {
	case *RoundActivated:
		fields["roundID"] = e.RoundID
		fields["ticketPrice"] = e.TicketPrice
		fields["saleDeadline"] = e.SaleDeadline
		fields["revealDeadline"] = e.RevealDeadline
	case *RoundWon:
		fields["roundID"] = e.RoundID
		fields["winner"] = e.Winner
		fields["prize"] = e.Prize
		fields["commission"] = e.Commission
		fields["ticketsIssued"] = e.TicketsIssued
		fields["candidateCount"] = e.CandidateCount
		fields["duration"] = e.Duration
	}
	p.entry.WithFields(fields).Info("Round event")
	return nil
}

// RedisEventPublisher publishes event envelopes on a Redis channel
type RedisEventPublisher struct {
	redisClient *redis.Client
	channel     string
}

// NewRedisEventPublisher creates a publisher on channel (DefaultEventChannel if empty)
func NewRedisEventPublisher(redisClient *redis.Client, channel string) *RedisEventPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &RedisEventPublisher{redisClient: redisClient, channel: channel}
}

// Publish sends the event envelope
func (p *RedisEventPublisher) Publish(ctx context.Context, event Event) error {
	envelope, err := NewEventEnvelope(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	if err := p.redisClient.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s on %s: %w", event.Type(), p.channel, err)
	}
	return nil
}

// MultiEventPublisher fans an event out to several publishers
type MultiEventPublisher []EventPublisher

// Publish delivers to every publisher and returns the first error
func (m MultiEventPublisher) Publish(ctx context.Context, event Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
