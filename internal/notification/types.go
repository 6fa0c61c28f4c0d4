package notification

import (
	"time"
)

// NotificationType represents the delivery channel
type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
)

// NotificationStatus represents notification delivery status
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

// Notification is a message to a citizen about their complaint
type Notification struct {
	ID     string             `json:"id"`
	Type   NotificationType   `json:"type"`
	Status NotificationStatus `json:"status"`

	// Recipient
	RecipientName string `json:"recipient_name,omitempty"`
	Email         string `json:"email"`

	// Content
	Subject string `json:"subject"`
	Body    string `json:"body"`

	// Metadata
	EventID       string `json:"event_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	TrackingCode  string `json:"tracking_code,omitempty"`

	SentAt *time.Time `json:"sent_at,omitempty"`

	// Retry info
	RetryCount   int        `json:"retry_count"`
	LastRetryAt  *time.Time `json:"last_retry_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationStats counts delivery outcomes since start
type NotificationStats struct {
	TotalSent    int64   `json:"total_sent"`
	TotalFailed  int64   `json:"total_failed"`
	DeliveryRate float64 `json:"delivery_rate"`
}
