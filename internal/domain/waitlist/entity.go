package waitlist

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadyNotified = errors.New("waitlist entry already holds an active claim")

// Entry is one user's place in a book's FIFO queue. Positions are 1-based and
// dense per book; the manager renumbers after every removal so "position"
// stays meaningful to users.
type Entry struct {
	id             uuid.UUID
	bookID         uuid.UUID
	userID         uuid.UUID
	position       int
	joinedAt       time.Time
	notifiedAt     *time.Time
	claimExpiresAt *time.Time
}

func NewEntry(bookID, userID uuid.UUID, position int, now time.Time) *Entry {
	return &Entry{
		id:       uuid.New(),
		bookID:   bookID,
		userID:   userID,
		position: position,
		joinedAt: now,
	}
}

func ReconstructEntry(
	id, bookID, userID uuid.UUID,
	position int,
	joinedAt time.Time,
	notifiedAt, claimExpiresAt *time.Time,
) *Entry {
	return &Entry{
		id:             id,
		bookID:         bookID,
		userID:         userID,
		position:       position,
		joinedAt:       joinedAt,
		notifiedAt:     notifiedAt,
		claimExpiresAt: claimExpiresAt,
	}
}

// Notify opens the claim window: the user has until now+window to convert
// their slot into a reservation.
func (e *Entry) Notify(now time.Time, window time.Duration) error {
	if e.notifiedAt != nil && e.claimExpiresAt != nil && now.Before(*e.claimExpiresAt) {
		return ErrAlreadyNotified
	}
	notifiedAt := now
	expiresAt := now.Add(window)
	e.notifiedAt = &notifiedAt
	e.claimExpiresAt = &expiresAt
	return nil
}

// IsActive reports whether the entry still occupies a queue slot. Entries are
// active until their claim window lapses; entries never notified have no
// window and stay active indefinitely.
func (e *Entry) IsActive(now time.Time) bool {
	if e.claimExpiresAt == nil {
		return true
	}
	return now.Before(*e.claimExpiresAt)
}

// AwaitingNotification reports whether the entry is eligible for promotion.
func (e *Entry) AwaitingNotification(now time.Time) bool {
	return e.notifiedAt == nil || (e.claimExpiresAt != nil && !now.Before(*e.claimExpiresAt))
}

// ClaimLapsed reports whether the entry was notified and the window passed
// without the user reserving.
func (e *Entry) ClaimLapsed(now time.Time) bool {
	return e.claimExpiresAt != nil && !now.Before(*e.claimExpiresAt)
}

func (e *Entry) SetPosition(position int) {
	e.position = position
}

func (e *Entry) ID() uuid.UUID              { return e.id }
func (e *Entry) BookID() uuid.UUID          { return e.bookID }
func (e *Entry) UserID() uuid.UUID          { return e.userID }
func (e *Entry) Position() int              { return e.position }
func (e *Entry) JoinedAt() time.Time        { return e.joinedAt }
func (e *Entry) NotifiedAt() *time.Time     { return e.notifiedAt }
func (e *Entry) ClaimExpiresAt() *time.Time { return e.claimExpiresAt }
