package outbox

import "time"

// Status is the drain state of an outbox record.
type Status int

// StatusPending is the state every record is created with.
// Transitions away from it belong to the drain process.
const StatusPending Status = 0

// Record is a row of the outbox table.
//
// A record exists only when direct broker delivery could not be proven durable,
// its presence is the redelivery obligation. The publish path only ever inserts
// records, it never updates or deletes them.
type Record struct {
	// ID is the envelope identifier, reused verbatim from the broker attempt.
	ID              string
	Topic           string
	Payload         string
	SpecVersion     string
	Source          string
	Type            string
	Time            time.Time
	DataContentType string
	TraceID         string

	// CreatedAt defaults to the store clock when nil.
	CreatedAt *time.Time
	// ProcessedAt is nil until the record is drained.
	ProcessedAt *time.Time
	RetryCount  int
	NextRetryAt *time.Time
	Error       *string
	Status      Status
}
