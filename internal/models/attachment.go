package models

import (
	"encoding/json"
	"time"
)

// Attachment is a file stored in object storage under a tenant prefix.
type Attachment struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	TicketID    string    `json:"ticketId"`
	ObjectKey   string    `json:"-"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Outbox event types.
const (
	EventCommentCreated = "comment.created"
)

// OutboxEvent is a domain event recorded in the same transaction as the
// change it describes.
type OutboxEvent struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	Type         string          `json:"type"`
	EntityID     string          `json:"entityId"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"createdAt"`
	DispatchedAt *time.Time      `json:"dispatchedAt,omitempty"`
}
