// Package memstore is an in-memory implementation of the circulation storage
// ports. A store-wide mutex gives each transaction the same isolation the
// Postgres row locks provide, which makes it suitable both for tests and for
// running the service without a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"libcirc/internal/domain/book"
	"libcirc/internal/domain/circulation"
	"libcirc/internal/domain/waitlist"
	"libcirc/internal/infra"
	"libcirc/internal/usecase/shared"

	"github.com/google/uuid"
)

type bookRow struct {
	id                   uuid.UUID
	title, author        string
	total, avail, resv   int
	createdAt, updatedAt time.Time
}

type recordRow struct {
	id, bookID, userID   uuid.UUID
	status               circulation.Status
	createdAt, dueDate   time.Time
	pickupToken          *string
	tokenGeneratedAt     *time.Time
	issuedAt, returnDate *time.Time
	finePaise            int64
	finePaid             bool
	finePaidAt           *time.Time
	updatedAt            time.Time
}

type entryRow struct {
	id, bookID, userID         uuid.UUID
	position                   int
	joinedAt                   time.Time
	notifiedAt, claimExpiresAt *time.Time
}

type Store struct {
	mu      sync.Mutex
	books   map[uuid.UUID]bookRow
	records map[uuid.UUID]recordRow
	entries map[uuid.UUID]entryRow
}

func New() *Store {
	return &Store{
		books:   make(map[uuid.UUID]bookRow),
		records: make(map[uuid.UUID]recordRow),
		entries: make(map[uuid.UUID]entryRow),
	}
}

// SeedBook installs a book outside any transaction.
func (s *Store) SeedBook(b *book.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[b.ID()] = bookToRow(b)
}

// Within holds the store lock for the whole function and applies mutations
// to a staged copy, so a failed fn leaves the store untouched.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &memTx{
		books:   cloneMap(s.books),
		records: cloneMap(s.records),
		entries: cloneMap(s.entries),
	}

	if err := fn(ctx, staged); err != nil {
		return err
	}

	s.books = staged.books
	s.records = staged.records
	s.entries = staged.entries
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memTx struct {
	books   map[uuid.UUID]bookRow
	records map[uuid.UUID]recordRow
	entries map[uuid.UUID]entryRow
}

func (t *memTx) Books() shared.BookRepository        { return &bookRepo{tx: t} }
func (t *memTx) Records() shared.RecordRepository    { return &recordRepo{tx: t} }
func (t *memTx) Waitlist() shared.WaitlistRepository { return &waitlistRepo{tx: t} }

type bookRepo struct {
	tx *memTx
}

func (r *bookRepo) FindForUpdate(_ context.Context, id uuid.UUID) (*book.Book, error) {
	row, ok := r.tx.books[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "book not found", nil)
	}
	return rowToBook(row), nil
}

func (r *bookRepo) Save(_ context.Context, b *book.Book) error {
	if _, ok := r.tx.books[b.ID()]; !ok {
		return infra.WrapRepoErr(infra.KindNotFound, "book not found on save", nil)
	}
	r.tx.books[b.ID()] = bookToRow(b)
	return nil
}

type recordRepo struct {
	tx *memTx
}

func (r *recordRepo) FindByID(_ context.Context, id uuid.UUID) (*circulation.Record, error) {
	row, ok := r.tx.records[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "circulation record not found", nil)
	}
	return rowToRecord(row), nil
}

func (r *recordRepo) FindForUpdate(ctx context.Context, id uuid.UUID) (*circulation.Record, error) {
	return r.FindByID(ctx, id)
}

func (r *recordRepo) Create(_ context.Context, rec *circulation.Record) error {
	if _, ok := r.tx.records[rec.ID()]; ok {
		return infra.WrapRepoErr(infra.KindDuplicateKey, "circulation record already exists", nil)
	}
	r.tx.records[rec.ID()] = recordToRow(rec)
	return nil
}

func (r *recordRepo) Save(_ context.Context, rec *circulation.Record) error {
	if _, ok := r.tx.records[rec.ID()]; !ok {
		return infra.WrapRepoErr(infra.KindNotFound, "circulation record not found on save", nil)
	}
	r.tx.records[rec.ID()] = recordToRow(rec)
	return nil
}

func (r *recordRepo) HasActiveForUserAndBook(_ context.Context, userID, bookID uuid.UUID) (bool, error) {
	for _, row := range r.tx.records {
		if row.userID == userID && row.bookID == bookID && row.status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (r *recordRepo) CountActiveForUser(_ context.Context, userID uuid.UUID) (int, error) {
	count := 0
	for _, row := range r.tx.records {
		if row.userID == userID && row.status.IsActive() {
			count++
		}
	}
	return count, nil
}

func (r *recordRepo) SumUnpaidFinesPaise(_ context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	for _, row := range r.tx.records {
		if row.userID == userID && row.finePaise > 0 && !row.finePaid {
			total += row.finePaise
		}
	}
	return total, nil
}

func (r *recordRepo) FindUnpaidFinesByUser(_ context.Context, userID uuid.UUID) ([]*circulation.Record, error) {
	var rows []recordRow
	for _, row := range r.tx.records {
		if row.userID == userID && row.finePaise > 0 && !row.finePaid {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.Before(rows[j].createdAt) })

	records := make([]*circulation.Record, len(rows))
	for i, row := range rows {
		records[i] = rowToRecord(row)
	}
	return records, nil
}

func (r *recordRepo) FindPending(_ context.Context) ([]*circulation.Record, error) {
	var rows []recordRow
	for _, row := range r.tx.records {
		if row.status == circulation.StatusPending {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.Before(rows[j].createdAt) })

	records := make([]*circulation.Record, len(rows))
	for i, row := range rows {
		records[i] = rowToRecord(row)
	}
	return records, nil
}

type waitlistRepo struct {
	tx *memTx
}

func (r *waitlistRepo) FindByBook(_ context.Context, bookID uuid.UUID) ([]*waitlist.Entry, error) {
	var rows []entryRow
	for _, row := range r.tx.entries {
		if row.bookID == bookID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].position < rows[j].position })

	entries := make([]*waitlist.Entry, len(rows))
	for i, row := range rows {
		entries[i] = rowToEntry(row)
	}
	return entries, nil
}

func (r *waitlistRepo) FindByUserAndBook(_ context.Context, userID, bookID uuid.UUID) (*waitlist.Entry, error) {
	var latest entryRow
	found := false
	for _, row := range r.tx.entries {
		if row.userID != userID || row.bookID != bookID {
			continue
		}
		if !found || row.joinedAt.After(latest.joinedAt) {
			latest = row
			found = true
		}
	}
	if !found {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "waitlist entry not found", nil)
	}
	return rowToEntry(latest), nil
}

func (r *waitlistRepo) Create(_ context.Context, e *waitlist.Entry) error {
	if _, ok := r.tx.entries[e.ID()]; ok {
		return infra.WrapRepoErr(infra.KindDuplicateKey, "waitlist entry already exists", nil)
	}
	r.tx.entries[e.ID()] = entryToRow(e)
	return nil
}

func (r *waitlistRepo) Save(_ context.Context, e *waitlist.Entry) error {
	if _, ok := r.tx.entries[e.ID()]; !ok {
		return infra.WrapRepoErr(infra.KindNotFound, "waitlist entry not found on save", nil)
	}
	r.tx.entries[e.ID()] = entryToRow(e)
	return nil
}

func (r *waitlistRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.tx.entries, id)
	return nil
}

func (r *waitlistRepo) BookIDsWithLapsedClaims(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, row := range r.tx.entries {
		if row.claimExpiresAt != nil && !now.Before(*row.claimExpiresAt) && !seen[row.bookID] {
			seen[row.bookID] = true
			ids = append(ids, row.bookID)
		}
	}
	return ids, nil
}

func bookToRow(b *book.Book) bookRow {
	return bookRow{
		id:        b.ID(),
		title:     b.Title(),
		author:    b.Author(),
		total:     b.TotalCopies(),
		avail:     b.AvailableCopies(),
		resv:      b.ReservedCopies(),
		createdAt: b.CreatedAt(),
		updatedAt: b.UpdatedAt(),
	}
}

func rowToBook(row bookRow) *book.Book {
	return book.ReconstructBook(row.id, row.title, row.author, row.total, row.avail, row.resv, row.createdAt, row.updatedAt)
}

func recordToRow(rec *circulation.Record) recordRow {
	return recordRow{
		id:               rec.ID(),
		bookID:           rec.BookID(),
		userID:           rec.UserID(),
		status:           rec.Status(),
		createdAt:        rec.CreatedAt(),
		dueDate:          rec.DueDate(),
		pickupToken:      rec.PickupToken(),
		tokenGeneratedAt: rec.TokenGeneratedAt(),
		issuedAt:         rec.IssuedAt(),
		returnDate:       rec.ReturnDate(),
		finePaise:        rec.FineAmount().Paise(),
		finePaid:         rec.FinePaid(),
		finePaidAt:       rec.FinePaidAt(),
		updatedAt:        rec.UpdatedAt(),
	}
}

func rowToRecord(row recordRow) *circulation.Record {
	fine, _ := circulation.NewMoney(row.finePaise)
	return circulation.ReconstructRecord(
		row.id, row.bookID, row.userID,
		row.status,
		row.createdAt, row.dueDate,
		row.pickupToken,
		row.tokenGeneratedAt, row.issuedAt, row.returnDate,
		fine,
		row.finePaid,
		row.finePaidAt,
		row.updatedAt,
	)
}

func entryToRow(e *waitlist.Entry) entryRow {
	return entryRow{
		id:             e.ID(),
		bookID:         e.BookID(),
		userID:         e.UserID(),
		position:       e.Position(),
		joinedAt:       e.JoinedAt(),
		notifiedAt:     e.NotifiedAt(),
		claimExpiresAt: e.ClaimExpiresAt(),
	}
}

func rowToEntry(row entryRow) *waitlist.Entry {
	return waitlist.ReconstructEntry(row.id, row.bookID, row.userID, row.position, row.joinedAt, row.notifiedAt, row.claimExpiresAt)
}

var _ shared.UnitOfWork = (*Store)(nil)
