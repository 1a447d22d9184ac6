package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/roadassist/internal/dispatch/domain"
)

// Publisher writes dispatch lifecycle events to a NATS subject. Publishing is
// best-effort; a Publisher without a connection is a no-op.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher builds a Publisher using the provided NATS connection.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = "dispatch.events"
	}
	return &Publisher{conn: conn, subject: subject}
}

// Publish satisfies domain.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, event domain.DispatchEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.PublishMsg(&nats.Msg{Subject: p.subject, Data: payload, Header: map[string][]string{
		"x-trace-id":   {traceIDFromContext(ctx)},
		"x-event-type": {string(event.Type)},
	}})
}

func traceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
