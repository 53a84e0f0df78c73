package domain

import "time"

// Metrics is an opaque metrics payload passed through from a collaborator.
type Metrics map[string]any

// HealthStatus maps a subsystem name to its health.
type HealthStatus map[string]bool

const (
	SubsystemDataCollection  = "data_collection"
	SubsystemPricingStrategy = "pricing_strategy"
	SubsystemUserAnalysis    = "user_analysis"
)

// DefaultMetricsPeriod is used when a caller does not name a reporting period.
const DefaultMetricsPeriod = "daily"

// MetricsSnapshot bundles collaborator metrics with the instant they were
// collected. Timestamp is RFC 3339 in UTC.
type MetricsSnapshot struct {
	Period    string  `json:"period"`
	Marketing Metrics `json:"marketing"`
	Retention Metrics `json:"retention"`
	Pricing   Metrics `json:"pricing"`
	Timestamp string  `json:"timestamp"`
}

// AuditRecord describes a single action taken by a growth operation.
type AuditRecord struct {
	RunID      string    `json:"runId,omitempty"`
	Operation  string    `json:"operation"`
	Action     string    `json:"action"`
	Segment    string    `json:"segment,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Count      int       `json:"count,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
