package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/civic-complaints/platform/internal/shared/config"
)

// Bus provides event publishing and subscription using KurrentDB
type Bus struct {
	client *esdb.Client
	prefix string
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(ctx context.Context, cfg config.KurrentDBConfig) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	bus := &Bus{
		client: client,
		prefix: "complaints",
	}

	if err := bus.healthCtx(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return bus, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.KurrentDBConfig) string {
	conn := cfg.URL()
	if cfg.Insecure {
		conn += "&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}
	return conn
}

// Publish appends the event to its aggregate stream (complaints-<id>), or to
// a per-type stream when the event has no aggregate.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, b.streamName(event), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func (b *Bus) streamName(event Event) string {
	if !event.AggregateID.IsZero() {
		return fmt.Sprintf("%s-%s", b.prefix, event.AggregateID)
	}
	return fmt.Sprintf("%s-%s", b.prefix, normalizeEventType(event.Type))
}

// normalizeEventType converts event type to stream-safe format
func normalizeEventType(eventType string) string {
	return strings.ReplaceAll(eventType, ".", "-")
}

// Subscribe starts a catch-up subscription on $all filtered by event type.
// Pattern "complaint.*" matches "complaint.submitted", "complaint.assigned".
func (b *Bus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	opts := esdb.SubscribeToAllOptions{From: esdb.End{}}
	if pattern != "*" && pattern != ">" {
		opts.Filter = &esdb.SubscriptionFilter{
			Type:  esdb.EventFilterType,
			Regex: patternToRegex(pattern),
		}
	}

	sub, err := b.client.SubscribeToAll(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern %s: %w", pattern, err)
	}

	log.Printf("Subscribed %s to %s", consumerName, pattern)
	go b.handleSubscription(ctx, sub, pattern, handler)
	return nil
}

// patternToRegex converts a simple wildcard pattern to regex
func patternToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '.':
			sb.WriteString(`\.`)
		case '*':
			sb.WriteString(".*")
		default:
			sb.WriteByte(pattern[i])
		}
	}
	return sb.String()
}

// handleSubscription processes events from a catch-up subscription
func (b *Bus) handleSubscription(ctx context.Context, sub *esdb.Subscription, pattern string, handler Handler) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		subEvent := sub.Recv()
		if subEvent.SubscriptionDropped != nil {
			log.Printf("Subscription to %s dropped: %v", pattern, subEvent.SubscriptionDropped.Error)
			return
		}
		if subEvent.EventAppeared == nil || subEvent.EventAppeared.Event == nil {
			continue
		}

		recorded := subEvent.EventAppeared.Event
		if strings.HasPrefix(recorded.EventType, "$") || !matchesPattern(recorded.EventType, pattern) {
			continue
		}

		event, err := recordedEventToEvent(recorded)
		if err != nil {
			log.Printf("Failed to convert event: %v", err)
			continue
		}

		if err := handler(ctx, event); err != nil {
			log.Printf("Handler error for event %s: %v", event.ID, err)
		}
	}
}

// matchesPattern checks if an event type matches a wildcard pattern
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == ">" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return true
		}
		if i >= len(typeParts) || pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// recordedEventToEvent converts a KurrentDB event to our Event type
func recordedEventToEvent(recorded *esdb.RecordedEvent) (Event, error) {
	var event Event
	if err := json.Unmarshal(recorded.Data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.ID == "" {
		event.ID = recorded.EventID.String()
	}

	return event, nil
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the KurrentDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.healthCtx(ctx)
}

func (b *Bus) healthCtx(ctx context.Context) error {
	stream, err := b.client.ReadAll(ctx, esdb.ReadAllOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	stream.Close()
	return nil
}
