package model

import (
	"encoding/json"
	"time"
)

// NotificationType classifies a notification for clients.
type NotificationType string

const (
	NotifyInfo   NotificationType = "info"
	NotifyEvent  NotificationType = "event"
	NotifyTicket NotificationType = "ticket"
	NotifySystem NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifyInfo, NotifyEvent, NotifyTicket, NotifySystem:
		return true
	}
	return false
}

// Notification is a message for one user, or for everyone when UserID is nil.
type Notification struct {
	ID        uint64           `json:"id"`
	UserID    *uint64          `json:"user_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Read      bool             `json:"read"`
	ReadAt    *time.Time       `json:"read_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// IsBroadcast reports whether the notification targets all users.
func (n *Notification) IsBroadcast() bool { return n.UserID == nil }
