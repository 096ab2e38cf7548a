package cdr

import "time"

// Record is an immutable, append-only pickup detail record.
//
// Invariants:
// - Records are never updated or deleted.
// - Recording is best-effort; pickup flows must not block on CDR failures.
//
// Storage (Postgres): table pickup_records, INSERT-only.
type Record struct {
	ID string `json:"id" db:"id"`

	RequesterID   string `json:"requester_id" db:"requester_id"`
	RequesterName string `json:"requester_name" db:"requester_name"`

	// Target identity is empty when no candidate matched.
	TargetID    string `json:"target_id,omitempty" db:"target_id"`
	TargetName  string `json:"target_name,omitempty" db:"target_name"`
	TargetExten string `json:"target_exten,omitempty" db:"target_exten"`
	DialContext string `json:"dial_context,omitempty" db:"dial_context"`

	// Spec is the raw identifier list the pickup was invoked with.
	Spec string `json:"spec,omitempty" db:"spec"`

	Outcome Outcome `json:"outcome" db:"outcome"`

	// FailedStep names the transaction step that failed, when Outcome is
	// failed: answer, control or masquerade.
	FailedStep string `json:"failed_step,omitempty" db:"failed_step"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoTarget  Outcome = "no_target"
)
