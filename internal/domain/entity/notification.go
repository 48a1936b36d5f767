package entity

import "time"

// Notification is an in-app message for a portal user
type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	IsRead      bool      `json:"is_read"`
	RelatedKind string    `json:"related_kind,omitempty"`
	RelatedID   string    `json:"related_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
