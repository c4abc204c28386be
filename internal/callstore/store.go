// Package callstore keeps the per-call record: status, appointment snapshot,
// transcript turns and the resolved outcome. Writes are last-write-wins per
// field; a single relay task owns a given call SID at a time.
package callstore

import (
	"context"
	"errors"
	"time"
)

var ErrCallNotFound = errors.New("call not found")

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Turn is one transcript utterance. Turns are append-only and strictly
// chronological; order is the only guarantee.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Outcome string

const (
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeRescheduled Outcome = "rescheduled"
	OutcomeIncomplete  Outcome = "incomplete"
)

// Call states.
const (
	StateInitiated = "initiated"
	StateStreaming = "streaming"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

type Record struct {
	CallSID       string     `json:"call_sid"`
	To            string     `json:"to,omitempty"`
	Status        string     `json:"status"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	Transcript    []Turn     `json:"transcript"`
	Outcome       Outcome    `json:"outcome,omitempty"`
	NewDateTime   *time.Time `json:"new_datetime,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Store interface {
	// Create registers a call record. Re-creating an existing SID resets it.
	Create(ctx context.Context, rec Record) error

	SetStatus(ctx context.Context, callSID, status string) error

	// SetTranscript replaces the stored transcript wholesale. The relay
	// flushes the full transcript once at stream end.
	SetTranscript(ctx context.Context, callSID string, turns []Turn) error

	// SetOutcome records the terminal classification. Later writes overwrite
	// earlier ones.
	SetOutcome(ctx context.Context, callSID string, outcome Outcome, newDateTime *time.Time) error

	Get(ctx context.Context, callSID string) (*Record, error)
}
