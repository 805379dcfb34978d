package domain

import "time"

// AuditCategory groups audit events for downstream filtering.
type AuditCategory string

const (
	AuditCategoryAuthentication AuditCategory = "authentication"
	AuditCategorySecurity       AuditCategory = "security"
	AuditCategorySession        AuditCategory = "session"
)

// AuditSeverity ranks audit events.
type AuditSeverity string

const (
	AuditSeverityInfo   AuditSeverity = "info"
	AuditSeverityMedium AuditSeverity = "medium"
	AuditSeverityHigh   AuditSeverity = "high"
)

// AuditEvent is a single security-relevant occurrence. Details must never carry
// raw passwords, tokens or authorization codes.
type AuditEvent struct {
	ID        string         `bson:"_id" json:"id"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Category  AuditCategory  `bson:"category" json:"category"`
	Severity  AuditSeverity  `bson:"severity" json:"severity"`
	Action    string         `bson:"action" json:"action"`
	Actor     string         `bson:"actor,omitempty" json:"actor,omitempty"`
	Success   bool           `bson:"success" json:"success"`
	Error     string         `bson:"error,omitempty" json:"error,omitempty"`
	Details   map[string]any `bson:"details,omitempty" json:"details,omitempty"`
}
