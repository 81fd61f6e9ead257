package book

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOutOfStock = errors.New("no copies effectively available")
	// ErrCounterUnderflow means a release or convert was called without a
	// matching reserve.
	ErrCounterUnderflow = errors.New("copy counter would go negative")
	ErrInvalidCopyCount = errors.New("copy counts cannot be negative")
)

// Book is the inventory unit. availableCopies counts copies physically on the
// shelf or pending pickup; reservedCopies counts copies claimed by a pending
// reservation but not yet handed out. The entity is not concurrency-safe on
// its own: callers mutate it inside a unit-of-work that holds the per-book
// lock for the whole check-and-mutate sequence.
type Book struct {
	id              uuid.UUID
	title           string
	author          string
	totalCopies     int
	availableCopies int
	reservedCopies  int
	createdAt       time.Time
	updatedAt       time.Time
}

func NewBook(title, author string, totalCopies int) (*Book, error) {
	if totalCopies < 0 {
		return nil, ErrInvalidCopyCount
	}
	return &Book{
		id:              uuid.New(),
		title:           title,
		author:          author,
		totalCopies:     totalCopies,
		availableCopies: totalCopies,
		reservedCopies:  0,
	}, nil
}

func ReconstructBook(
	id uuid.UUID,
	title, author string,
	totalCopies, availableCopies, reservedCopies int,
	createdAt, updatedAt time.Time,
) *Book {
	return &Book{
		id:              id,
		title:           title,
		author:          author,
		totalCopies:     totalCopies,
		availableCopies: availableCopies,
		reservedCopies:  reservedCopies,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

// EffectivelyAvailable is the number of copies a new reservation may claim.
func (b *Book) EffectivelyAvailable() int {
	n := b.availableCopies - b.reservedCopies
	if n < 0 {
		return 0
	}
	return n
}

func (b *Book) CanBeReserved() bool {
	return b.availableCopies-b.reservedCopies > 0
}

// Reserve claims a copy for a pending reservation. The copy stays on the
// shelf; only reservedCopies moves.
func (b *Book) Reserve(now time.Time) error {
	if b.availableCopies-b.reservedCopies <= 0 {
		return ErrOutOfStock
	}
	b.reservedCopies++
	b.updatedAt = now
	return nil
}

// ConvertReservationToLoan hands the reserved copy out: it physically leaves
// the building, so both counters drop.
func (b *Book) ConvertReservationToLoan(now time.Time) error {
	if b.availableCopies <= 0 || b.reservedCopies <= 0 {
		return ErrCounterUnderflow
	}
	b.availableCopies--
	b.reservedCopies--
	b.updatedAt = now
	return nil
}

// ReleaseReservation undoes a reservation that never became a loan
// (cancellation or token expiry). availableCopies is untouched.
func (b *Book) ReleaseReservation(now time.Time) error {
	if b.reservedCopies <= 0 {
		return ErrCounterUnderflow
	}
	b.reservedCopies--
	b.updatedAt = now
	return nil
}

// ReleaseLoan puts a returned copy back on the shelf.
func (b *Book) ReleaseLoan(now time.Time) {
	b.availableCopies++
	b.updatedAt = now
}

func (b *Book) ID() uuid.UUID        { return b.id }
func (b *Book) Title() string        { return b.title }
func (b *Book) Author() string       { return b.author }
func (b *Book) TotalCopies() int     { return b.totalCopies }
func (b *Book) AvailableCopies() int { return b.availableCopies }
func (b *Book) ReservedCopies() int  { return b.reservedCopies }
func (b *Book) CreatedAt() time.Time { return b.createdAt }
func (b *Book) UpdatedAt() time.Time { return b.updatedAt }
