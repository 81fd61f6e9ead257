package shared

import (
	"context"
	"time"

	"libcirc/internal/domain/book"
	"libcirc/internal/domain/circulation"
	"libcirc/internal/domain/waitlist"

	"github.com/google/uuid"
)

// UnitOfWork draws the transaction boundary around each state-machine
// operation. Implementations must guarantee that repository calls made
// through one Tx serialize against concurrent Txs touching the same book:
// the Postgres implementation locks the book row, the in-memory one holds a
// store-wide mutex. No sink I/O happens inside fn.
type UnitOfWork interface {
	// Within runs fn in a read-write transaction, retrying on transient
	// serialization failures.
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Books() BookRepository
	Records() RecordRepository
	Waitlist() WaitlistRepository
}

// BookRepository is the Inventory Ledger's storage port. FindForUpdate pins
// the book for the remainder of the transaction, making the
// load-check-mutate-save sequence atomic per book.
type BookRepository interface {
	FindForUpdate(ctx context.Context, id uuid.UUID) (*book.Book, error)
	Save(ctx context.Context, b *book.Book) error
}

type RecordRepository interface {
	// FindByID performs a plain read; commands that start from a record ID
	// use it to learn the book ID, then lock the book, then re-read with
	// FindForUpdate. Locking book-before-record keeps lock order consistent.
	FindByID(ctx context.Context, id uuid.UUID) (*circulation.Record, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*circulation.Record, error)
	Create(ctx context.Context, rec *circulation.Record) error
	Save(ctx context.Context, rec *circulation.Record) error
	HasActiveForUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (bool, error)
	CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error)
	SumUnpaidFinesPaise(ctx context.Context, userID uuid.UUID) (int64, error)
	FindUnpaidFinesByUser(ctx context.Context, userID uuid.UUID) ([]*circulation.Record, error)
	// FindPending feeds the reminder pass; pending record counts stay small
	// (bounded by copies in circulation), so no narrower filter is needed.
	FindPending(ctx context.Context) ([]*circulation.Record, error)
}

type WaitlistRepository interface {
	// FindByBook returns all of a book's entries ordered by position; callers
	// filter on claim state themselves so the lazy sweep can see lapsed ones.
	FindByBook(ctx context.Context, bookID uuid.UUID) ([]*waitlist.Entry, error)
	FindByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*waitlist.Entry, error)
	Create(ctx context.Context, e *waitlist.Entry) error
	Save(ctx context.Context, e *waitlist.Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
	// BookIDsWithLapsedClaims feeds the lazy expiry sweep.
	BookIDsWithLapsedClaims(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}
