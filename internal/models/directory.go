package models

import "time"

// Site is a physical location tickets are raised against.
type Site struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IssueType classifies tickets; only active types accept new tickets.
type IssueType struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// FieldDatatype is the value type of a custom field.
type FieldDatatype string

const (
	DatatypeString  FieldDatatype = "string"
	DatatypeNumber  FieldDatatype = "number"
	DatatypeBoolean FieldDatatype = "boolean"
	DatatypeDate    FieldDatatype = "date"
	DatatypeEnum    FieldDatatype = "enum"
)

// Valid reports whether d is a known datatype.
func (d FieldDatatype) Valid() bool {
	switch d {
	case DatatypeString, DatatypeNumber, DatatypeBoolean, DatatypeDate, DatatypeEnum:
		return true
	}
	return false
}

// FieldDefinition describes a tenant-defined ticket custom field.
type FieldDefinition struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId"`
	Key         string        `json:"key"`
	Label       string        `json:"label"`
	Datatype    FieldDatatype `json:"datatype"`
	Required    bool          `json:"required"`
	EnumOptions []string      `json:"enumOptions,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}
