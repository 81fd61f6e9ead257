//go:build unit

package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"libcirc/internal/domain/book"
	"libcirc/internal/domain/circulation"
	"libcirc/internal/infra/memstore"
	"libcirc/internal/pkg/clock"
	"libcirc/internal/pkg/errs"
	"libcirc/internal/usecase/commands"
	"libcirc/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

const (
	claimWindow    = 24 * time.Hour
	reminderWindow = 6 * time.Hour
)

type recordingSink struct {
	mu     sync.Mutex
	events []shared.Event
}

func (s *recordingSink) Publish(_ context.Context, event shared.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) kinds() []shared.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]shared.EventKind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (s *recordingSink) last() shared.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

type fixture struct {
	store  *memstore.Store
	clk    *clock.MockClock
	sink   *recordingSink
	circ   commands.CirculationCommands
	wait   commands.WaitlistCommands
	bookID uuid.UUID
}

func newFixture(t *testing.T, copies int) *fixture {
	t.Helper()
	return newFixtureWithLimit(t, copies, 5)
}

func newFixtureWithLimit(t *testing.T, copies, limit int) *fixture {
	t.Helper()

	policy, err := circulation.NewBorrowingPolicy(limit, 14, circulation.MustMoney(500))
	require.NoError(t, err)

	b, err := book.NewBook("The Go Programming Language", "Donovan & Kernighan", copies)
	require.NoError(t, err)

	store := memstore.New()
	store.SeedBook(b)

	clk := clock.NewMockClock(baseTime)
	sink := &recordingSink{}

	return &fixture{
		store:  store,
		clk:    clk,
		sink:   sink,
		circ:   commands.NewCirculationCommands(store, sink, clk, policy, circulation.NewDailyFineCalculator(policy.FinePerDay), commands.ClaimWindow(claimWindow), commands.ReminderWindow(reminderWindow)),
		wait:   commands.NewWaitlistCommands(store, sink, clk, commands.ClaimWindow(claimWindow)),
		bookID: b.ID(),
	}
}

func (f *fixture) book(t *testing.T) *book.Book {
	t.Helper()
	var b *book.Book
	err := f.store.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		var err error
		b, err = tx.Books().FindForUpdate(ctx, f.bookID)
		return err
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) record(t *testing.T, id uuid.UUID) *circulation.Record {
	t.Helper()
	var rec *circulation.Record
	err := f.store.Within(context.Background(), func(ctx context.Context, tx shared.Tx) error {
		var err error
		rec, err = tx.Records().FindByID(ctx, id)
		return err
	})
	require.NoError(t, err)
	return rec
}

// borrow walks a record through reserve, token validation and pickup so tests
// can start from a live loan.
func (f *fixture) borrow(t *testing.T, userID uuid.UUID) *circulation.Record {
	t.Helper()
	ctx := context.Background()

	rec, err := f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)

	issue, err := f.circ.GeneratePickupToken(ctx, userID, rec.ID())
	require.NoError(t, err)

	validation, err := f.circ.ValidateToken(ctx, issue.Token)
	require.NoError(t, err)
	require.Equal(t, circulation.TokenKindBorrow, validation.Kind)

	loaned, err := f.circ.ConfirmPickup(ctx, rec.ID())
	require.NoError(t, err)
	return loaned
}

func TestReserve_CreatesPendingAndHoldsCopy(t *testing.T) {
	f := newFixture(t, 3)
	userID := uuid.New()

	rec, err := f.circ.Reserve(context.Background(), userID, f.bookID)
	require.NoError(t, err)

	assert.Equal(t, circulation.StatusPending, rec.Status())
	assert.Equal(t, userID, rec.UserID())
	assert.Equal(t, baseTime.Add(14*24*time.Hour), rec.DueDate())

	b := f.book(t)
	assert.Equal(t, 3, b.AvailableCopies(), "reserve must not consume a physical copy")
	assert.Equal(t, 1, b.ReservedCopies())
	assert.Equal(t, 2, b.EffectivelyAvailable())

	require.Equal(t, []shared.EventKind{shared.EventReservationConfirmed}, f.sink.kinds())
	event := f.sink.last()
	require.NotNil(t, event.RecordID)
	assert.Equal(t, rec.ID(), *event.RecordID)
}

func TestReserve_UnknownBook(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.circ.Reserve(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, errs.ErrBookNotFound)
}

func TestReserve_OutOfStock(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.circ.Reserve(ctx, uuid.New(), f.bookID)
	require.NoError(t, err)

	_, err = f.circ.Reserve(ctx, uuid.New(), f.bookID)
	assert.ErrorIs(t, err, errs.ErrOutOfStock)

	b := f.book(t)
	assert.Equal(t, 1, b.ReservedCopies(), "failed reserve must not leak a slot")
}

func TestReserve_DuplicateActive(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)

	_, err = f.circ.Reserve(ctx, userID, f.bookID)
	assert.ErrorIs(t, err, errs.ErrDuplicateActive)

	b := f.book(t)
	assert.Equal(t, 1, b.ReservedCopies())
}

func TestReserve_LimitExceeded(t *testing.T) {
	f := newFixtureWithLimit(t, 2, 1)
	ctx := context.Background()
	userID := uuid.New()

	other, err := book.NewBook("Clean Architecture", "Robert C. Martin", 2)
	require.NoError(t, err)
	f.store.SeedBook(other)

	_, err = f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)

	_, err = f.circ.Reserve(ctx, userID, other.ID())
	assert.ErrorIs(t, err, errs.ErrLimitExceeded)

	var second *book.Book
	require.NoError(t, f.store.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		var err error
		second, err = tx.Books().FindForUpdate(ctx, other.ID())
		return err
	}))
	assert.Equal(t, 0, second.ReservedCopies(), "rejected reserve must not hold a copy")
}

func TestReserve_BlockedByOutstandingFinesUntilPaid(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	userID := uuid.New()

	loan := f.borrow(t, userID)
	f.clk.Advance(16 * 24 * time.Hour)

	returned, err := f.circ.Return(ctx, loan.ID())
	require.NoError(t, err)
	require.False(t, returned.FineAmount().IsZero())

	_, err = f.circ.Reserve(ctx, userID, f.bookID)
	assert.ErrorIs(t, err, errs.ErrOutstandingFines)

	_, err = f.circ.PayAllFines(ctx, userID)
	require.NoError(t, err)

	_, err = f.circ.Reserve(ctx, userID, f.bookID)
	assert.NoError(t, err)
}

func TestPickupAndReturn_NetZeroInventory(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	userID := uuid.New()

	loan := f.borrow(t, userID)

	b := f.book(t)
	assert.Equal(t, 1, b.AvailableCopies())
	assert.Equal(t, 0, b.ReservedCopies())
	assert.Equal(t, circulation.StatusBorrowed, loan.Status())
	assert.Equal(t, baseTime.Add(14*24*time.Hour), loan.DueDate(), "loan period re-anchors at pickup")

	returned, err := f.circ.Return(ctx, loan.ID())
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusReturned, returned.Status())
	assert.True(t, returned.FineAmount().IsZero())

	b = f.book(t)
	assert.Equal(t, 2, b.AvailableCopies())
	assert.Equal(t, 0, b.ReservedCopies())

	assert.Equal(t, []shared.EventKind{
		shared.EventReservationConfirmed,
		shared.EventReservationReady,
		shared.EventLoanStarted,
		shared.EventLoanReturned,
	}, f.sink.kinds())
}

func TestGeneratePickupToken_Idempotent(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	userID := uuid.New()

	rec, err := f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)

	first, err := f.circ.GeneratePickupToken(ctx, userID, rec.ID())
	require.NoError(t, err)
	assert.True(t, first.Fresh)
	assert.Equal(t, baseTime.Add(circulation.TokenTTL), first.ExpiresAt)

	f.clk.Advance(time.Hour)

	second, err := f.circ.GeneratePickupToken(ctx, userID, rec.ID())
	require.NoError(t, err)
	assert.False(t, second.Fresh)
	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt, "re-read must not extend the window")

	ready := 0
	for _, kind := range f.sink.kinds() {
		if kind == shared.EventReservationReady {
			ready++
		}
	}
	assert.Equal(t, 1, ready, "re-reading a token must not notify again")
}

func TestGeneratePickupToken_WrongOwner(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	rec, err := f.circ.Reserve(ctx, uuid.New(), f.bookID)
	require.NoError(t, err)

	_, err = f.circ.GeneratePickupToken(ctx, uuid.New(), rec.ID())
	assert.ErrorIs(t, err, errs.ErrRecordNotFound, "foreign records must be indistinguishable from missing ones")
}

func TestValidateToken_Malformed(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.circ.ValidateToken(context.Background(), "not a token")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInvalidToken), "decode failures must carry the invalid-token mark")
}

func TestValidateToken_WrongStateAfterPickup(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	userID := uuid.New()

	rec, err := f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)
	issue, err := f.circ.GeneratePickupToken(ctx, userID, rec.ID())
	require.NoError(t, err)
	_, err = f.circ.ConfirmPickup(ctx, rec.ID())
	require.NoError(t, err)

	_, err = f.circ.ValidateToken(ctx, issue.Token)
	assert.ErrorIs(t, err, errs.ErrWrongState)
}

func TestConfirmPickup_RejectsReservationWithoutToken(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	userID := uuid.New()

	rec, err := f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)

	_, err = f.circ.ConfirmPickup(ctx, rec.ID())
	assert.ErrorIs(t, err, errs.ErrWrongState)

	after := f.record(t, rec.ID())
	assert.Equal(t, circulation.StatusPending, after.Status(), "a reservation with no token has no running TTL to expire")
	b := f.book(t)
	assert.Equal(t, 1, b.ReservedCopies(), "the reserved copy must stay held")
	assert.Equal(t, []shared.EventKind{shared.EventReservationConfirmed}, f.sink.kinds())
}

func TestValidateToken_RejectsBorrowTokenBeforeIssue(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	userID := uuid.New()

	rec, err := f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)

	forged := circulation.Token{
		Kind:     circulation.TokenKindBorrow,
		RecordID: rec.ID(),
		BookID:   f.bookID,
		UserID:   userID,
	}.Encode()

	_, err = f.circ.ValidateToken(ctx, forged)
	assert.ErrorIs(t, err, errs.ErrInvalidToken)
	assert.Equal(t, circulation.StatusPending, f.record(t, rec.ID()).Status())
}

func TestValidateToken_ExpiryFlipsRecordAndPromotes(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	holder := uuid.New()
	waiter := uuid.New()

	rec, err := f.circ.Reserve(ctx, holder, f.bookID)
	require.NoError(t, err)
	issue, err := f.circ.GeneratePickupToken(ctx, holder, rec.ID())
	require.NoError(t, err)

	position, err := f.wait.Join(ctx, waiter, f.bookID)
	require.NoError(t, err)
	require.Equal(t, 1, position)

	f.clk.Advance(circulation.TokenTTL)

	_, err = f.circ.ValidateToken(ctx, issue.Token)
	require.ErrorIs(t, err, errs.ErrTokenExpired)

	// The failed scan still committed its side effects.
	assert.Equal(t, circulation.StatusExpired, f.record(t, rec.ID()).Status())
	b := f.book(t)
	assert.Equal(t, 0, b.ReservedCopies())
	assert.Equal(t, 1, b.AvailableCopies())

	event := f.sink.last()
	assert.Equal(t, shared.EventBookAvailable, event.Kind)
	assert.Equal(t, waiter, event.UserID)
	assert.Contains(t, event.Meta, "claim_expires_at")
}

func TestConfirmPickup_ExpiredToken(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	userID := uuid.New()

	rec, err := f.circ.Reserve(ctx, userID, f.bookID)
	require.NoError(t, err)
	_, err = f.circ.GeneratePickupToken(ctx, userID, rec.ID())
	require.NoError(t, err)

	f.clk.Advance(circulation.TokenTTL + time.Minute)

	_, err = f.circ.ConfirmPickup(ctx, rec.ID())
	require.ErrorIs(t, err, errs.ErrTokenExpired)

	assert.Equal(t, circulation.StatusExpired, f.record(t, rec.ID()).Status())
	assert.Equal(t, 0, f.book(t).ReservedCopies())
}

func TestCancelReservation_ReleasesAndPromotes(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	holder := uuid.New()
	waiter := uuid.New()

	rec, err := f.circ.Reserve(ctx, holder, f.bookID)
	require.NoError(t, err)
	_, err = f.wait.Join(ctx, waiter, f.bookID)
	require.NoError(t, err)

	require.NoError(t, f.circ.CancelReservation(ctx, holder, rec.ID()))

	assert.Equal(t, circulation.StatusCancelled, f.record(t, rec.ID()).Status())
	assert.Equal(t, 0, f.book(t).ReservedCopies())

	kinds := f.sink.kinds()
	require.Len(t, kinds, 3)
	assert.Equal(t, shared.EventReservationCancelled, kinds[1])
	assert.Equal(t, shared.EventBookAvailable, kinds[2])
}

func TestCancelReservation_WrongOwner(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	rec, err := f.circ.Reserve(ctx, uuid.New(), f.bookID)
	require.NoError(t, err)

	err = f.circ.CancelReservation(ctx, uuid.New(), rec.ID())
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
	assert.Equal(t, circulation.StatusPending, f.record(t, rec.ID()).Status())
}

func TestReturn_LateChargesPerDay(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	userID := uuid.New()

	loan := f.borrow(t, userID)
	f.clk.Advance(16 * 24 * time.Hour)

	returned, err := f.circ.Return(ctx, loan.ID())
	require.NoError(t, err)

	assert.Equal(t, int64(1000), returned.FineAmount().Paise(), "two days late at 500 paise per day")
	assert.False(t, returned.FinePaid())

	event := f.sink.last()
	require.Equal(t, shared.EventFineApplied, event.Kind)
	assert.Equal(t, int64(1000), event.Meta["amount_paise"])
}

func TestReturn_WrongState(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	rec, err := f.circ.Reserve(ctx, uuid.New(), f.bookID)
	require.NoError(t, err)

	_, err = f.circ.Return(ctx, rec.ID())
	assert.ErrorIs(t, err, errs.ErrWrongState)
}

func TestPayFine_Lifecycle(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	userID := uuid.New()

	loan := f.borrow(t, userID)
	f.clk.Advance(15 * 24 * time.Hour)
	_, err := f.circ.Return(ctx, loan.ID())
	require.NoError(t, err)

	paid, err := f.circ.PayFine(ctx, userID, loan.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(500), paid.Paise())

	_, err = f.circ.PayFine(ctx, userID, loan.ID())
	assert.ErrorIs(t, err, errs.ErrFineAlreadyPaid)
}

func TestPayAllFines(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	userID := uuid.New()

	first := f.borrow(t, userID)
	f.clk.Advance(15 * 24 * time.Hour)
	_, err := f.circ.Return(ctx, first.ID())
	require.NoError(t, err)

	// Outstanding fines block reserving, so settle the second loan's setup
	// through a different book.
	other, err := book.NewBook("The Mythical Man-Month", "Frederick P. Brooks Jr.", 1)
	require.NoError(t, err)
	f.store.SeedBook(other)

	_, err = f.circ.PayAllFines(ctx, userID)
	require.NoError(t, err)

	second, err := f.circ.Reserve(ctx, userID, other.ID())
	require.NoError(t, err)
	_, err = f.circ.GeneratePickupToken(ctx, userID, second.ID())
	require.NoError(t, err)
	_, err = f.circ.ConfirmPickup(ctx, second.ID())
	require.NoError(t, err)

	f.clk.Advance(16 * 24 * time.Hour)
	_, err = f.circ.Return(ctx, second.ID())
	require.NoError(t, err)

	total, err := f.circ.PayAllFines(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total.Paise())

	_, err = f.circ.PayAllFines(ctx, userID)
	assert.ErrorIs(t, err, errs.ErrNothingToPay)
}

func TestSendPickupReminders(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	tokenless := uuid.New()
	expiring := uuid.New()
	fresh := uuid.New()

	_, err := f.circ.Reserve(ctx, tokenless, f.bookID)
	require.NoError(t, err)

	expiringRec, err := f.circ.Reserve(ctx, expiring, f.bookID)
	require.NoError(t, err)
	_, err = f.circ.GeneratePickupToken(ctx, expiring, expiringRec.ID())
	require.NoError(t, err)

	// The third token is minted later, so it stays outside the warning window.
	f.clk.Advance(circulation.TokenTTL - reminderWindow)
	freshRec, err := f.circ.Reserve(ctx, fresh, f.bookID)
	require.NoError(t, err)
	_, err = f.circ.GeneratePickupToken(ctx, fresh, freshRec.ID())
	require.NoError(t, err)

	notified, err := f.circ.SendPickupReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, notified)

	byKind := make(map[shared.EventKind]shared.Event)
	f.sink.mu.Lock()
	for _, e := range f.sink.events {
		if e.Kind == shared.EventPickupReminder || e.Kind == shared.EventReservationExpiring {
			byKind[e.Kind] = e
		}
	}
	f.sink.mu.Unlock()

	require.Contains(t, byKind, shared.EventPickupReminder)
	assert.Equal(t, tokenless, byKind[shared.EventPickupReminder].UserID)

	require.Contains(t, byKind, shared.EventReservationExpiring)
	assert.Equal(t, expiring, byKind[shared.EventReservationExpiring].UserID)
	assert.InDelta(t, reminderWindow.Hours(), byKind[shared.EventReservationExpiring].Meta["hours_remaining"], 0.01)
}

func TestReserve_ConcurrentLastCopy(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	const contenders = 8
	results := make(chan error, contenders)

	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.circ.Reserve(ctx, uuid.New(), f.bookID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errs.Is(err, errs.ErrOutOfStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, contenders-1, rejected)

	b := f.book(t)
	assert.Equal(t, 1, b.ReservedCopies())
	assert.Equal(t, 0, b.EffectivelyAvailable())
}
