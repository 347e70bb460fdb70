package models

import (
	"encoding/json"
	"time"
)

// TicketStatus is the workflow state of a ticket.
type TicketStatus string

const (
	StatusNew              TicketStatus = "NEW"
	StatusAwaitingResponse TicketStatus = "AWAITING_RESPONSE"
	StatusADEToRespond     TicketStatus = "ADE_TO_RESPOND"
	StatusOnHold           TicketStatus = "ON_HOLD"
	StatusClosed           TicketStatus = "CLOSED"
)

// TicketStatuses lists every valid status in workflow order.
var TicketStatuses = []TicketStatus{StatusNew, StatusAwaitingResponse, StatusADEToRespond, StatusOnHold, StatusClosed}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, v := range TicketStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Priority is P1 (highest) through P4.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityP1, PriorityP2, PriorityP3, PriorityP4:
		return true
	}
	return false
}

// Ticket is a unit of work raised against a site.
type Ticket struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	SiteID         string          `json:"siteId"`
	TypeKey        string          `json:"type"`
	Description    string          `json:"description"`
	Details        *string         `json:"details,omitempty"`
	Status         TicketStatus    `json:"status"`
	Priority       Priority        `json:"priority"`
	AssignedUserID *string         `json:"assignedUserId,omitempty"`
	DueAt          *time.Time      `json:"dueAt,omitempty"`
	CustomFields   json.RawMessage `json:"custom_fields"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
