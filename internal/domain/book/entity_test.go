//go:build unit

package book_test

import (
	"testing"
	"time"

	"libcirc/internal/domain/book"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newBook(t *testing.T, copies int) *book.Book {
	t.Helper()
	b, err := book.NewBook("The Go Programming Language", "Donovan & Kernighan", copies)
	require.NoError(t, err)
	return b
}

func TestNewBook_RejectsNegativeCopies(t *testing.T) {
	_, err := book.NewBook("x", "y", -1)
	assert.ErrorIs(t, err, book.ErrInvalidCopyCount)
}

func TestBook_ReserveConsumesEffectiveAvailability(t *testing.T) {
	b := newBook(t, 2)

	require.NoError(t, b.Reserve(now))
	assert.Equal(t, 1, b.EffectivelyAvailable())
	assert.Equal(t, now, b.UpdatedAt())
	require.NoError(t, b.Reserve(now))
	assert.Equal(t, 0, b.EffectivelyAvailable())

	// Both copies are spoken for even though both still sit on the shelf.
	assert.Equal(t, 2, b.AvailableCopies())
	assert.ErrorIs(t, b.Reserve(now), book.ErrOutOfStock)
}

func TestBook_ReserveConvertReturn_NetZero(t *testing.T) {
	b := newBook(t, 3)

	require.NoError(t, b.Reserve(now))
	require.NoError(t, b.ConvertReservationToLoan(now))
	assert.Equal(t, 2, b.AvailableCopies())
	assert.Equal(t, 0, b.ReservedCopies())

	b.ReleaseLoan(now)
	assert.Equal(t, 3, b.AvailableCopies())
	assert.Equal(t, 0, b.ReservedCopies())
	assert.Equal(t, 3, b.EffectivelyAvailable())
}

func TestBook_ReleaseReservationRestoresAvailability(t *testing.T) {
	b := newBook(t, 1)

	require.NoError(t, b.Reserve(now))
	assert.False(t, b.CanBeReserved())

	require.NoError(t, b.ReleaseReservation(now))
	assert.True(t, b.CanBeReserved())
	assert.Equal(t, 1, b.AvailableCopies())
}

func TestBook_CounterUnderflowGuards(t *testing.T) {
	b := newBook(t, 1)

	assert.ErrorIs(t, b.ReleaseReservation(now), book.ErrCounterUnderflow)
	assert.ErrorIs(t, b.ConvertReservationToLoan(now), book.ErrCounterUnderflow)
}
