package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrWrongState      = errors.New("record is not in a state that permits this operation")
	ErrFineAlreadyPaid = errors.New("fine is already paid")
	ErrNothingToPay    = errors.New("record has no unpaid fine")
)

// Record represents one reservation-through-return lifecycle for one
// (user, book) pairing. It is the only place status transitions happen; the
// usecase layer wraps every transition in a per-book transaction.
//
// pending --IssueToken--> pending (idempotent)
// pending --StartLoan--> borrowed
// pending --Cancel--> cancelled
// pending --Expire (token TTL lapsed)--> expired
// borrowed --CompleteReturn--> returned
type Record struct {
	id               uuid.UUID
	bookID           uuid.UUID
	userID           uuid.UUID
	status           Status
	createdAt        time.Time
	dueDate          time.Time
	pickupToken      *string
	tokenGeneratedAt *time.Time
	issuedAt         *time.Time
	returnDate       *time.Time
	fineAmount       Money
	finePaid         bool
	finePaidAt       *time.Time
	updatedAt        time.Time
}

// NewRecord creates a pending reservation. dueDate is a placeholder computed
// from the reservation moment; StartLoan re-anchors it to the actual pickup.
func NewRecord(bookID, userID uuid.UUID, now time.Time, policy BorrowingPolicy) *Record {
	return &Record{
		id:        uuid.New(),
		bookID:    bookID,
		userID:    userID,
		status:    StatusPending,
		createdAt: now,
		dueDate:   now.Add(policy.Period),
		updatedAt: now,
	}
}

func ReconstructRecord(
	id, bookID, userID uuid.UUID,
	status Status,
	createdAt, dueDate time.Time,
	pickupToken *string,
	tokenGeneratedAt, issuedAt, returnDate *time.Time,
	fineAmount Money,
	finePaid bool,
	finePaidAt *time.Time,
	updatedAt time.Time,
) *Record {
	return &Record{
		id:               id,
		bookID:           bookID,
		userID:           userID,
		status:           status,
		createdAt:        createdAt,
		dueDate:          dueDate,
		pickupToken:      pickupToken,
		tokenGeneratedAt: tokenGeneratedAt,
		issuedAt:         issuedAt,
		returnDate:       returnDate,
		fineAmount:       fineAmount,
		finePaid:         finePaid,
		finePaidAt:       finePaidAt,
		updatedAt:        updatedAt,
	}
}

// IssueToken mints (or re-returns) the pickup proof for a pending record.
// While an unexpired token exists the same token comes back, so a user
// refreshing their QR screen never invalidates the one staff may already be
// scanning. Returns the encoded token and whether it was freshly minted.
func (r *Record) IssueToken(now time.Time) (string, bool, error) {
	if r.status != StatusPending {
		return "", false, ErrWrongState
	}

	if r.pickupToken != nil && r.tokenGeneratedAt != nil && r.TokenValidAt(now) {
		return *r.pickupToken, false, nil
	}

	encoded := Token{
		Kind:     TokenKindBorrow,
		RecordID: r.id,
		BookID:   r.bookID,
		UserID:   r.userID,
	}.Encode()
	r.pickupToken = &encoded
	generatedAt := now
	r.tokenGeneratedAt = &generatedAt
	r.updatedAt = now
	return encoded, true, nil
}

// ReturnToken encodes the proof presented at return time. Borrowed records
// only; the token carries no TTL of its own because the loan it closes has
// none.
func (r *Record) ReturnToken() (string, error) {
	if r.status != StatusBorrowed {
		return "", ErrWrongState
	}
	return Token{
		Kind:     TokenKindReturn,
		RecordID: r.id,
		BookID:   r.bookID,
		UserID:   r.userID,
	}.Encode(), nil
}

// TokenValidAt reports whether the pickup token exists and now falls inside
// its closed-open validity window.
func (r *Record) TokenValidAt(now time.Time) bool {
	if r.tokenGeneratedAt == nil {
		return false
	}
	return now.Before(r.tokenGeneratedAt.Add(TokenTTL))
}

func (r *Record) TokenExpiresAt() *time.Time {
	if r.tokenGeneratedAt == nil {
		return nil
	}
	t := r.tokenGeneratedAt.Add(TokenTTL)
	return &t
}

// StartLoan converts the reservation into a live loan. The due date is
// re-anchored to the pickup moment and the token is cleared so it cannot be
// replayed.
func (r *Record) StartLoan(now time.Time, policy BorrowingPolicy) error {
	if r.status != StatusPending {
		return ErrWrongState
	}
	r.status = StatusBorrowed
	issuedAt := now
	r.issuedAt = &issuedAt
	r.dueDate = now.Add(policy.Period)
	r.pickupToken = nil
	r.tokenGeneratedAt = nil
	r.updatedAt = now
	return nil
}

func (r *Record) Cancel(now time.Time) error {
	if r.status != StatusPending {
		return ErrWrongState
	}
	r.status = StatusCancelled
	r.updatedAt = now
	return nil
}

// Expire marks a pending record whose pickup token outlived its TTL without
// being consumed.
func (r *Record) Expire(now time.Time) error {
	if r.status != StatusPending {
		return ErrWrongState
	}
	r.status = StatusExpired
	r.updatedAt = now
	return nil
}

// CompleteReturn closes a loan. The fine is computed exactly once, here, by
// the caller's FineCalculator; nothing recomputes it afterwards.
func (r *Record) CompleteReturn(now time.Time, fine Money) error {
	if r.status != StatusBorrowed {
		return ErrWrongState
	}
	r.status = StatusReturned
	returnDate := now
	r.returnDate = &returnDate
	r.fineAmount = fine
	r.updatedAt = now
	return nil
}

func (r *Record) HasUnpaidFine() bool {
	return !r.fineAmount.IsZero() && !r.finePaid
}

func (r *Record) MarkFinePaid(now time.Time) error {
	if r.fineAmount.IsZero() {
		return ErrNothingToPay
	}
	if r.finePaid {
		return ErrFineAlreadyPaid
	}
	r.finePaid = true
	paidAt := now
	r.finePaidAt = &paidAt
	r.updatedAt = now
	return nil
}

func (r *Record) ID() uuid.UUID                { return r.id }
func (r *Record) BookID() uuid.UUID            { return r.bookID }
func (r *Record) UserID() uuid.UUID            { return r.userID }
func (r *Record) Status() Status               { return r.status }
func (r *Record) CreatedAt() time.Time         { return r.createdAt }
func (r *Record) DueDate() time.Time           { return r.dueDate }
func (r *Record) PickupToken() *string         { return r.pickupToken }
func (r *Record) TokenGeneratedAt() *time.Time { return r.tokenGeneratedAt }
func (r *Record) IssuedAt() *time.Time         { return r.issuedAt }
func (r *Record) ReturnDate() *time.Time       { return r.returnDate }
func (r *Record) FineAmount() Money            { return r.fineAmount }
func (r *Record) FinePaid() bool               { return r.finePaid }
func (r *Record) FinePaidAt() *time.Time       { return r.finePaidAt }
func (r *Record) UpdatedAt() time.Time         { return r.updatedAt }
