package commands

import (
	"context"
	"log/slog"
	"time"

	"libcirc/internal/domain/book"
	"libcirc/internal/domain/waitlist"
	"libcirc/internal/infra"
	"libcirc/internal/pkg/clock"
	"libcirc/internal/pkg/errs"
	"libcirc/internal/usecase/shared"

	"github.com/google/uuid"
)

// WaitlistCommands manages per-book FIFO queues: joining when no copy is
// effectively available, promotion when one frees up, and the lazy sweep of
// lapsed claims.
type WaitlistCommands interface {
	Join(ctx context.Context, userID, bookID uuid.UUID) (int, error)
	PromoteNext(ctx context.Context, bookID uuid.UUID) (*uuid.UUID, error)
	ExpireStaleClaims(ctx context.Context) (int, error)
}

type waitlistCommandsImpl struct {
	uow    shared.UnitOfWork
	sink   shared.NotificationSink
	clock  clock.Clock
	claims ClaimWindow
}

func NewWaitlistCommands(
	uow shared.UnitOfWork,
	sink shared.NotificationSink,
	clk clock.Clock,
	claims ClaimWindow,
) WaitlistCommands {
	return &waitlistCommandsImpl{
		uow:    uow,
		sink:   sink,
		clock:  clk,
		claims: claims,
	}
}

// Join appends the user to the book's queue. Idempotent: an existing active
// entry just reports its current position.
func (w *waitlistCommandsImpl) Join(ctx context.Context, userID, bookID uuid.UUID) (int, error) {
	now := w.clock.Now()
	var position int

	err := w.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		if _, err := tx.Books().FindForUpdate(ctx, bookID); err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.ErrBookNotFound
			}
			return err
		}

		existing, err := tx.Waitlist().FindByUserAndBook(ctx, userID, bookID)
		if err != nil && !infra.IsKind(err, infra.KindNotFound) {
			return err
		}
		if existing != nil {
			if existing.IsActive(now) {
				position = existing.Position()
				return nil
			}
			// A lapsed claim the sweep has not reached yet. Replace it so the
			// user never holds two entries for the same book.
			if err := tx.Waitlist().Delete(ctx, existing.ID()); err != nil {
				return err
			}
			if err := renumber(ctx, tx, bookID, now); err != nil {
				return err
			}
		}

		entries, err := tx.Waitlist().FindByBook(ctx, bookID)
		if err != nil {
			return err
		}
		next := 1
		for _, e := range entries {
			if e.Position() >= next {
				next = e.Position() + 1
			}
		}

		entry := waitlist.NewEntry(bookID, userID, next, now)
		if err := tx.Waitlist().Create(ctx, entry); err != nil {
			return err
		}
		position = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// PromoteNext notifies the front of the queue if the ledger reports a copy
// they could actually claim. Returns the notified user, or nil if nobody was
// promoted.
func (w *waitlistCommandsImpl) PromoteNext(ctx context.Context, bookID uuid.UUID) (*uuid.UUID, error) {
	now := w.clock.Now()
	var promoted *promotion

	err := w.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		b, err := tx.Books().FindForUpdate(ctx, bookID)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.ErrBookNotFound
			}
			return err
		}
		promoted, err = promoteNext(ctx, tx, b, now, time.Duration(w.claims))
		return err
	})
	if err != nil {
		return nil, err
	}
	if promoted == nil {
		return nil, nil
	}

	emitEvent(ctx, w.sink, shared.Event{
		Kind:       shared.EventBookAvailable,
		BookID:     promoted.bookID,
		UserID:     promoted.userID,
		OccurredAt: now,
		Meta:       map[string]any{"claim_expires_at": promoted.claimExpiresAt},
	})
	return &promoted.userID, nil
}

// ExpireStaleClaims is the caller-driven sweep: entries whose claim window
// lapsed without a reservation are removed, remaining positions compacted,
// and the next candidates get their chance. Returns how many entries were
// removed.
func (w *waitlistCommandsImpl) ExpireStaleClaims(ctx context.Context) (int, error) {
	now := w.clock.Now()
	removed := 0
	var promotions []*promotion

	bookIDs, err := w.lapsedBookIDs(ctx, now)
	if err != nil {
		return 0, err
	}

	// One transaction per book keeps each lock scope small; a failure on one
	// book does not undo the sweep of another. Counts and promotions are
	// staged per attempt and folded in only after the commit, so a retried or
	// failed transaction contributes nothing.
	for _, bookID := range bookIDs {
		var bookRemoved int
		var bookPromotions []*promotion

		err := w.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
			bookRemoved = 0
			bookPromotions = nil

			b, err := tx.Books().FindForUpdate(ctx, bookID)
			if err != nil {
				return err
			}

			entries, err := tx.Waitlist().FindByBook(ctx, bookID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.ClaimLapsed(now) {
					if err := tx.Waitlist().Delete(ctx, e.ID()); err != nil {
						return err
					}
					bookRemoved++
				}
			}
			if err := renumber(ctx, tx, bookID, now); err != nil {
				return err
			}

			// Cascade: keep promoting until the queue is drained or the
			// ledger says no copy remains unclaimed.
			for {
				p, err := promoteNext(ctx, tx, b, now, time.Duration(w.claims))
				if err != nil {
					return err
				}
				if p == nil {
					break
				}
				bookPromotions = append(bookPromotions, p)
			}
			return nil
		})
		if err != nil {
			slog.Warn("waitlist sweep failed for book", "book_id", bookID.String(), "error", err.Error())
			continue
		}
		removed += bookRemoved
		promotions = append(promotions, bookPromotions...)
	}

	for _, p := range promotions {
		emitEvent(ctx, w.sink, shared.Event{
			Kind:       shared.EventBookAvailable,
			BookID:     p.bookID,
			UserID:     p.userID,
			OccurredAt: now,
			Meta:       map[string]any{"claim_expires_at": p.claimExpiresAt},
		})
	}
	return removed, nil
}

func (w *waitlistCommandsImpl) lapsedBookIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := w.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		var err error
		ids, err = tx.Waitlist().BookIDsWithLapsedClaims(ctx, now)
		return err
	})
	return ids, err
}

// promotion carries what the post-commit book_available event needs.
type promotion struct {
	bookID         uuid.UUID
	userID         uuid.UUID
	claimExpiresAt time.Time
}

// promoteNext runs inside the caller's transaction with the book already
// locked. Promotion opens a claim window; it does not consume a copy, so the
// number of open claims is capped by the effective availability — otherwise
// a sweep would notify the whole queue for a single freed copy.
func promoteNext(ctx context.Context, tx shared.Tx, b *book.Book, now time.Time, window time.Duration) (*promotion, error) {
	if b.EffectivelyAvailable() <= 0 {
		return nil, nil
	}

	entries, err := tx.Waitlist().FindByBook(ctx, b.ID())
	if err != nil {
		return nil, err
	}

	openClaims := 0
	var candidate *waitlist.Entry
	for _, e := range entries {
		if e.NotifiedAt() != nil && !e.ClaimLapsed(now) {
			openClaims++
			continue
		}
		if e.AwaitingNotification(now) && candidate == nil {
			candidate = e
		}
	}
	if candidate == nil || openClaims >= b.EffectivelyAvailable() {
		return nil, nil
	}

	if err := candidate.Notify(now, window); err != nil {
		return nil, err
	}
	if err := tx.Waitlist().Save(ctx, candidate); err != nil {
		return nil, err
	}

	return &promotion{
		bookID:         b.ID(),
		userID:         candidate.UserID(),
		claimExpiresAt: *candidate.ClaimExpiresAt(),
	}, nil
}

// renumber compacts the book's active positions to a dense 1..N sequence
// preserving relative order.
func renumber(ctx context.Context, tx shared.Tx, bookID uuid.UUID, now time.Time) error {
	entries, err := tx.Waitlist().FindByBook(ctx, bookID)
	if err != nil {
		return err
	}
	next := 1
	for _, e := range entries {
		if !e.IsActive(now) {
			continue
		}
		if e.Position() != next {
			e.SetPosition(next)
			if err := tx.Waitlist().Save(ctx, e); err != nil {
				return err
			}
		}
		next++
	}
	return nil
}

// emitEvent is the fire-and-forget boundary: sink failures are logged and
// swallowed so a committed transition is still reported as successful.
func emitEvent(ctx context.Context, sink shared.NotificationSink, event shared.Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, event); err != nil {
		slog.Warn("notification sink publish failed",
			"kind", string(event.Kind),
			"book_id", event.BookID.String(),
			"error", err.Error())
	}
}
