package domain

import "time"

// AuditAction identifies the OAuth-administrative action an audit entry
// records.
type AuditAction string

const (
	AuditActionAuthorize  AuditAction = "authorize"
	AuditActionToken      AuditAction = "token"
	AuditActionRevoke     AuditAction = "revoke"
	AuditActionIntrospect AuditAction = "introspect"
)

// AuditLogEntry is an immutable, append-only record of one administrative
// OAuth action and its outcome. Entries are never updated or deleted.
type AuditLogEntry struct {
	ID               string      `bson:"_id" json:"id"`
	Action           AuditAction `bson:"action" json:"action"`
	ClientID         string      `bson:"client_id,omitempty" json:"client_id,omitempty"`
	UserID           string      `bson:"user_id,omitempty" json:"user_id,omitempty"`
	IPAddress        string      `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent        string      `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	Success          bool        `bson:"success" json:"success"`
	ErrorCode        string      `bson:"error_code,omitempty" json:"error_code,omitempty"`
	ErrorDescription string      `bson:"error_description,omitempty" json:"error_description,omitempty"`
	CreatedAt        time.Time   `bson:"created_at" json:"created_at"`
}

// AuditLogFilter narrows audit log queries.
type AuditLogFilter struct {
	Action  AuditAction
	Success *bool
	Limit   int
	Offset  int
}
