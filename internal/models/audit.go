package models

import "time"

// Audited lifecycle actions.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionQuoteAccept      = "QUOTE_ACCEPT"
	AuditActionQuoteReject      = "QUOTE_REJECT"
	AuditActionRequestCancel    = "REQUEST_CANCEL"
	AuditActionProjectCancel    = "PROJECT_CANCEL"
	AuditActionRatingModerate   = "RATING_MODERATE"
	AuditActionProviderModerate = "PROVIDER_MODERATE"
)

// AuditEntry is one row of the marketplace audit trail. Entries are written
// after the audited mutation has succeeded and are never updated.
type AuditEntry struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole  string    `db:"actor_role" json:"actor_role,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Route      string    `db:"route" json:"route,omitempty"`
	StatusCode int       `db:"status_code" json:"status_code"`
	RequestID  string    `db:"request_id" json:"request_id,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
