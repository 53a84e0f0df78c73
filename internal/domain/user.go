package domain

import "time"

// UserRecord is a subscriber as reported by the signal source. The core only
// references records for the lifetime of a single operation.
type UserRecord struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	LastActiveAt time.Time        `json:"lastActiveAt"`
	SignedUpAt   time.Time        `json:"signedUpAt"`
	Usage        map[string]int64 `json:"usage,omitempty"`
}

// Segments maps a segment label to the users that share its engagement
// characteristic. Produced fresh on every campaign run.
type Segments map[string][]UserRecord

// ChurnRiskScore pairs a user with an estimated cancellation probability.
type ChurnRiskScore struct {
	User UserRecord `json:"user"`
	Risk float64    `json:"risk"`
}
