package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes proposal lifecycle events to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.proposals.<event_type>
// Event types: proposal_created, proposal_submitted, proposal_approved,
//              proposal_rejected, proposal_deleted, approval_reset
//
// All publish operations are non-fatal: errors are logged but never
// propagated to the caller, so notification failures never interrupt
// document operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS and returns a publisher.
func NewNotificationPublisher(url string, log zerolog.Logger) (*NotificationPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("be-sales-proposals"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NotificationPublisher{conn: conn, log: log}, nil
}

// Conn exposes the underlying connection so the request/reply handler can
// share it instead of dialing a second time.
func (p *NotificationPublisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the NATS connection.
func (p *NotificationPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// PublishProposalEvent publishes a document lifecycle event.
// Subject: notifications.proposals.<eventType>
func (p *NotificationPublisher) PublishProposalEvent(ctx context.Context, eventType, kind, documentID, actorID string, recipients []string, payload map[string]any) {
	if p.conn == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: kind,
		ResourceID:   documentID,
		Severity:     "info",
		Category:     "proposal_lifecycle",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.proposals.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", documentID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", documentID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
