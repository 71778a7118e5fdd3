package types

import "time"

// NotificationType classifies ephemeral user-facing messages.
type NotificationType string

const (
	NotifySuccess NotificationType = "success"
	NotifyError   NotificationType = "error"
	NotifyInfo    NotificationType = "info"
)

// Notification is a self-expiring user message. Instances are immutable
// after creation; removal is by id, either via the expiry timer or an
// explicit dismissal.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"createdAt"`
}
