package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventReservationConfirmed EventKind = "reservation_confirmed"
	EventReservationReady     EventKind = "reservation_ready"
	EventReservationExpiring  EventKind = "reservation_expiring"
	EventReservationCancelled EventKind = "reservation_cancelled"
	EventLoanStarted          EventKind = "loan_started"
	EventLoanReturned         EventKind = "loan_returned"
	EventFineApplied          EventKind = "fine_applied"
	EventBookAvailable        EventKind = "book_available"
	EventPickupReminder       EventKind = "pickup_reminder"
)

// Event announces a committed state change to the outside world.
type Event struct {
	Kind       EventKind      `json:"kind"`
	BookID     uuid.UUID      `json:"book_id"`
	UserID     uuid.UUID      `json:"user_id"`
	RecordID   *uuid.UUID     `json:"record_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// NotificationSink is the one-way boundary to the notification service. The
// core calls it after commit, never inside a transaction, and ignores its
// failures: a committed transition stays committed even if the announcement
// is lost.
type NotificationSink interface {
	Publish(ctx context.Context, event Event) error
}
