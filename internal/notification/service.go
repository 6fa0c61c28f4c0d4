// Package notification emails citizens about their complaints. It consumes
// complaint events from the event bus and delivers through a pool of
// workers, so delivery never affects the change that raised the event.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/events"
	"github.com/civic-complaints/platform/internal/shared/metrics"
)

// ConsumerName identifies the notification subscription on the event bus
const ConsumerName = "citizen-notifications"

// Service is the notification service
type Service struct {
	emailProvider EmailProvider

	// State
	mu      sync.RWMutex
	pending map[string]*Notification
	stats   NotificationStats

	// Processing
	notifCh chan *Notification

	// Lifecycle
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	config ServiceConfig
}

// EmailProvider delivers email notifications
type EmailProvider interface {
	Send(ctx context.Context, notification *Notification) error
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
	// TrackBaseURL is prepended to tracking codes in messages.
	TrackBaseURL string
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:       4,
		BufferSize:    1000,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
		TrackBaseURL:  "http://localhost:3000/track/",
	}
}

// NewService creates a new notification service
func NewService(emailProvider EmailProvider, config ServiceConfig) *Service {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	return &Service{
		emailProvider: emailProvider,
		pending:       make(map[string]*Notification),
		notifCh:       make(chan *Notification, config.BufferSize),
		stopCh:        make(chan struct{}),
		config:        config,
	}
}

// Start starts the delivery workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	return nil
}

// Stop stops the workers. Queued notifications are dropped.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("service not started")
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	return nil
}

// Subscribe consumes complaint events from bus until ctx ends
func (s *Service) Subscribe(ctx context.Context, bus events.EventBus) error {
	return bus.Subscribe(ctx, "complaint.*", ConsumerName, s.HandleEvent)
}

// HandleEvent turns a complaint event into a citizen email. Events citizens
// are not told about are ignored.
func (s *Service) HandleEvent(ctx context.Context, event events.Event) error {
	payload, err := decodeComplaintEvent(event.Data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}
	if payload.CitizenEmail == "" {
		return nil
	}

	subject, body, ok, err := composeMessage(event.Type, payload, s.config.TrackBaseURL)
	if err != nil || !ok {
		return err
	}

	return s.SendNotification(ctx, &Notification{
		Type:          NotificationTypeEmail,
		RecipientName: payload.CitizenName,
		Email:         payload.CitizenEmail,
		Subject:       subject,
		Body:          body,
		EventID:       event.ID,
		CorrelationID: event.CorrelationID,
		TrackingCode:  payload.TrackingCode.String(),
	})
}

// decodeComplaintEvent accepts the typed payload published in process and
// the generic JSON one read back from KurrentDB.
func decodeComplaintEvent(data any) (domain.ComplaintEvent, error) {
	switch v := data.(type) {
	case domain.ComplaintEvent:
		return v, nil
	case *domain.ComplaintEvent:
		return *v, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return domain.ComplaintEvent{}, err
	}
	var e domain.ComplaintEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return domain.ComplaintEvent{}, err
	}
	return e, nil
}

// SendNotification queues a notification for delivery
func (s *Service) SendNotification(ctx context.Context, notification *Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	now := time.Now()
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = now
	}
	notification.UpdatedAt = now
	notification.Status = StatusPending

	s.mu.Lock()
	s.pending[notification.ID] = notification
	s.mu.Unlock()

	select {
	case s.notifCh <- notification:
		return nil
	default:
		s.finish(notification, fmt.Errorf("notification buffer full"))
		return fmt.Errorf("notification buffer full")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case notif := <-s.notifCh:
			s.processNotification(ctx, notif)
		}
	}
}

// processNotification delivers one notification, requeueing it after
// RetryDelay until RetryAttempts is exhausted
func (s *Service) processNotification(ctx context.Context, notif *Notification) {
	var err error
	if s.emailProvider == nil {
		err = fmt.Errorf("email provider not configured")
	} else {
		err = s.emailProvider.Send(ctx, notif)
	}

	if err == nil {
		s.finish(notif, nil)
		return
	}

	s.mu.Lock()
	notif.ErrorMessage = err.Error()
	notif.RetryCount++
	now := time.Now()
	notif.LastRetryAt = &now
	notif.UpdatedAt = now
	exhausted := notif.RetryCount >= s.config.RetryAttempts
	s.mu.Unlock()

	if exhausted {
		log.Printf("Notification %s to %s failed after %d attempts: %v", notif.ID, notif.TrackingCode, notif.RetryCount, err)
		s.finish(notif, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.config.RetryDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
		select {
		case s.notifCh <- notif:
		default:
			s.finish(notif, fmt.Errorf("notification buffer full"))
		}
	}()
}

// finish records the outcome of a notification and forgets it
func (s *Service) finish(notif *Notification, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	notif.UpdatedAt = now
	if err != nil {
		notif.Status = StatusFailed
		notif.ErrorMessage = err.Error()
		s.stats.TotalFailed++
	} else {
		notif.Status = StatusSent
		notif.SentAt = &now
		s.stats.TotalSent++
	}
	if total := s.stats.TotalSent + s.stats.TotalFailed; total > 0 {
		s.stats.DeliveryRate = float64(s.stats.TotalSent) / float64(total)
	}
	delete(s.pending, notif.ID)

	metrics.RecordNotification(string(notif.Type), err == nil)
}

// Pending returns the number of notifications not yet delivered or failed
func (s *Service) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Stats returns delivery statistics
func (s *Service) Stats() NotificationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
