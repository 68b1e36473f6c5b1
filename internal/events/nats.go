package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// SubjectPrefix is the NATS subject root for auction events; the full
// subject is "auction.events.<listing_id>".
const SubjectPrefix = "auction.events"

// NATSEmitter publishes events to a JetStream stream so slow consumers
// (the broadcast relay, archival) never lose committed events.
type NATSEmitter struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNATSEmitter creates the emitter and ensures the AUCTION_EVENTS
// stream exists.
func NewNATSEmitter(conn *nats.Conn) (*NATSEmitter, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        "AUCTION_EVENTS",
		Description: "Committed auction state changes",
		Subjects:    []string{SubjectPrefix + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &NATSEmitter{conn: conn, js: js}, nil
}

// Emit publishes one event. The JetStream ack confirms persistence.
func (e *NATSEmitter) Emit(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return &domain.DependencyError{Dependency: "broadcast", Cause: err}
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, ev.ListingID)
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := e.js.Publish(pubCtx, subject, data); err != nil {
		return &domain.DependencyError{Dependency: "broadcast", Cause: err}
	}
	return nil
}

// ListingIDFromSubject extracts the listing id from an event subject.
// Example: "auction.events.lst-123" -> "lst-123".
func ListingIDFromSubject(subject string) string {
	prefix := SubjectPrefix + "."
	if len(subject) > len(prefix) {
		return subject[len(prefix):]
	}
	return ""
}
