package commands

import (
	"context"
	"log/slog"
	"time"

	"libcirc/internal/domain/circulation"
	"libcirc/internal/infra"
	"libcirc/internal/pkg/clock"
	"libcirc/internal/pkg/errs"
	"libcirc/internal/usecase/shared"

	"github.com/google/uuid"
)

// TokenIssue is the result of minting (or re-reading) a pickup token.
type TokenIssue struct {
	Token     string
	ExpiresAt time.Time
	Fresh     bool
}

// TokenValidation is what the staff scanner UI shows before confirming a
// pickup or return. Producing it mutates nothing, so the scanner may poll.
type TokenValidation struct {
	Kind     circulation.TokenKind
	RecordID uuid.UUID
	BookID   uuid.UUID
	UserID   uuid.UUID
	Status   circulation.Status
	DueDate  time.Time
}

// CirculationCommands is the circulation state machine: the only mutator of
// record status and the only writer of book copy counters.
type CirculationCommands interface {
	Reserve(ctx context.Context, userID, bookID uuid.UUID) (*circulation.Record, error)
	GeneratePickupToken(ctx context.Context, userID, recordID uuid.UUID) (*TokenIssue, error)
	GenerateReturnToken(ctx context.Context, userID, recordID uuid.UUID) (string, error)
	ValidateToken(ctx context.Context, encoded string) (*TokenValidation, error)
	ConfirmPickup(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error)
	CancelReservation(ctx context.Context, userID, recordID uuid.UUID) error
	Return(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error)
	PayFine(ctx context.Context, userID, recordID uuid.UUID) (circulation.Money, error)
	PayAllFines(ctx context.Context, userID uuid.UUID) (circulation.Money, error)
	SendPickupReminders(ctx context.Context) (int, error)
}

type circulationCommandsImpl struct {
	uow       shared.UnitOfWork
	sink      shared.NotificationSink
	clock     clock.Clock
	policy    circulation.BorrowingPolicy
	fines     circulation.FineCalculator
	claims    ClaimWindow
	reminders ReminderWindow
}

// ClaimWindow is how long a promoted waitlist user has to reserve.
type ClaimWindow time.Duration

// ReminderWindow is how close to token expiry a pending pickup must be before
// the reminder pass flags it as expiring.
type ReminderWindow time.Duration

func NewCirculationCommands(
	uow shared.UnitOfWork,
	sink shared.NotificationSink,
	clk clock.Clock,
	policy circulation.BorrowingPolicy,
	fines circulation.FineCalculator,
	claims ClaimWindow,
	reminders ReminderWindow,
) CirculationCommands {
	return &circulationCommandsImpl{
		uow:       uow,
		sink:      sink,
		clock:     clk,
		policy:    policy,
		fines:     fines,
		claims:    claims,
		reminders: reminders,
	}
}

// Reserve creates a pending reservation. All preconditions are checked and
// the reserved-copies increment applied inside one transaction, so a failed
// late check can never leak a reservation slot.
func (c *circulationCommandsImpl) Reserve(ctx context.Context, userID, bookID uuid.UUID) (*circulation.Record, error) {
	now := c.clock.Now()
	var created *circulation.Record

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		b, err := tx.Books().FindForUpdate(ctx, bookID)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.ErrBookNotFound
			}
			return err
		}

		// Precondition order per policy: availability, duplicate, limit,
		// fines. First failure wins.
		if !b.CanBeReserved() {
			return errs.ErrOutOfStock
		}

		hasActive, err := tx.Records().HasActiveForUserAndBook(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if hasActive {
			return errs.ErrDuplicateActive
		}

		activeCount, err := tx.Records().CountActiveForUser(ctx, userID)
		if err != nil {
			return err
		}
		if activeCount >= c.policy.Limit {
			return errs.ErrLimitExceeded
		}

		unpaidPaise, err := tx.Records().SumUnpaidFinesPaise(ctx, userID)
		if err != nil {
			return err
		}
		if unpaidPaise > 0 {
			return errs.ErrOutstandingFines
		}

		if err := b.Reserve(now); err != nil {
			return errs.Mark(err, errs.ErrOutOfStock)
		}
		if err := tx.Books().Save(ctx, b); err != nil {
			return err
		}

		rec := circulation.NewRecord(bookID, userID, now, c.policy)
		if err := tx.Records().Create(ctx, rec); err != nil {
			return err
		}

		// A successful reservation consumes the user's waitlist claim, if any.
		entry, err := tx.Waitlist().FindByUserAndBook(ctx, userID, bookID)
		if err != nil && !infra.IsKind(err, infra.KindNotFound) {
			return err
		}
		if entry != nil {
			if err := tx.Waitlist().Delete(ctx, entry.ID()); err != nil {
				return err
			}
			if err := renumber(ctx, tx, bookID, now); err != nil {
				return err
			}
		}

		created = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, shared.Event{
		Kind:       shared.EventReservationConfirmed,
		BookID:     bookID,
		UserID:     userID,
		RecordID:   ptrOf(created.ID()),
		OccurredAt: now,
	})
	return created, nil
}

// GeneratePickupToken is idempotent: while an unexpired token exists the same
// token comes back and no event fires again.
func (c *circulationCommandsImpl) GeneratePickupToken(ctx context.Context, userID, recordID uuid.UUID) (*TokenIssue, error) {
	now := c.clock.Now()
	var issue *TokenIssue
	var bookID uuid.UUID

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		rec, err := c.lockRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if rec.UserID() != userID {
			return errs.ErrRecordNotFound
		}

		token, fresh, err := rec.IssueToken(now)
		if err != nil {
			return errs.Mark(err, errs.ErrWrongState)
		}
		if fresh {
			if err := tx.Records().Save(ctx, rec); err != nil {
				return err
			}
		}

		bookID = rec.BookID()
		issue = &TokenIssue{
			Token:     token,
			ExpiresAt: *rec.TokenExpiresAt(),
			Fresh:     fresh,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if issue.Fresh {
		c.emit(ctx, shared.Event{
			Kind:       shared.EventReservationReady,
			BookID:     bookID,
			UserID:     userID,
			RecordID:   &recordID,
			OccurredAt: now,
		})
	}
	return issue, nil
}

func (c *circulationCommandsImpl) GenerateReturnToken(ctx context.Context, userID, recordID uuid.UUID) (string, error) {
	var token string
	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		rec, err := tx.Records().FindByID(ctx, recordID)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.ErrRecordNotFound
			}
			return err
		}
		if rec.UserID() != userID {
			return errs.ErrRecordNotFound
		}
		token, err = rec.ReturnToken()
		if err != nil {
			return errs.Mark(err, errs.ErrWrongState)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ValidateToken decodes and checks a scanned token. The happy path mutates
// nothing so the scanner UI can poll it. The one side effect: a pickup token
// past its TTL flips the record to expired, releases the reserved copy and
// gives the waitlist its chance.
func (c *circulationCommandsImpl) ValidateToken(ctx context.Context, encoded string) (*TokenValidation, error) {
	token, err := circulation.DecodeToken(encoded)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrInvalidToken)
	}

	now := c.clock.Now()
	var validation *TokenValidation
	var promoted *promotion
	var expired bool

	err = c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		expired = false
		promoted = nil

		rec, err := c.lockRecord(ctx, tx, token.RecordID)
		if err != nil {
			return err
		}
		if rec.BookID() != token.BookID || rec.UserID() != token.UserID {
			return errs.ErrInvalidToken
		}

		switch token.Kind {
		case circulation.TokenKindBorrow:
			if rec.Status() != circulation.StatusPending {
				return errs.ErrWrongState
			}
			if rec.TokenGeneratedAt() == nil {
				return errs.ErrInvalidToken
			}
			if !rec.TokenValidAt(now) {
				// Returning nil here lets the expiry flip commit; the caller
				// still gets ErrTokenExpired below.
				promoted, err = c.expirePendingRecord(ctx, tx, rec, now)
				if err != nil {
					return err
				}
				expired = true
				return nil
			}
			b, err := tx.Books().FindForUpdate(ctx, rec.BookID())
			if err != nil {
				return err
			}
			// Defensive re-check; a pending reservation holds a reserved copy
			// so this only trips if inventory was edited underneath us.
			if b.AvailableCopies() <= 0 {
				return errs.ErrBookNotAvailable
			}

		case circulation.TokenKindReturn:
			if rec.Status() != circulation.StatusBorrowed {
				return errs.ErrWrongState
			}
		}

		validation = &TokenValidation{
			Kind:     token.Kind,
			RecordID: rec.ID(),
			BookID:   rec.BookID(),
			UserID:   rec.UserID(),
			Status:   rec.Status(),
			DueDate:  rec.DueDate(),
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	if promoted != nil {
		c.emitPromotion(ctx, promoted, now)
	}
	if expired {
		return nil, errs.ErrTokenExpired
	}
	return validation, nil
}

// ConfirmPickup converts a validated reservation into a live loan.
func (c *circulationCommandsImpl) ConfirmPickup(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error) {
	now := c.clock.Now()
	var rec *circulation.Record
	var promoted *promotion
	var expired bool

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		expired = false
		promoted = nil

		var err error
		rec, err = c.lockRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if rec.Status() != circulation.StatusPending {
			return errs.ErrWrongState
		}
		// A reservation with no token yet is not confirmable, and it is not
		// expirable either: the TTL only runs once a token exists.
		if rec.TokenGeneratedAt() == nil {
			return errs.ErrWrongState
		}
		if !rec.TokenValidAt(now) {
			promoted, err = c.expirePendingRecord(ctx, tx, rec, now)
			if err != nil {
				return err
			}
			expired = true
			return nil
		}

		b, err := tx.Books().FindForUpdate(ctx, rec.BookID())
		if err != nil {
			return err
		}
		if err := b.ConvertReservationToLoan(now); err != nil {
			return errs.Mark(err, errs.ErrInvariantViolation)
		}
		if err := tx.Books().Save(ctx, b); err != nil {
			return err
		}

		if err := rec.StartLoan(now, c.policy); err != nil {
			return errs.Mark(err, errs.ErrWrongState)
		}
		return tx.Records().Save(ctx, rec)
	})

	if err != nil {
		if errs.Is(err, errs.ErrInvariantViolation) {
			slog.Error("inventory invariant violated during pickup confirmation",
				"record_id", recordID.String(), "error", err.Error())
		}
		return nil, err
	}
	if promoted != nil {
		c.emitPromotion(ctx, promoted, now)
	}
	if expired {
		return nil, errs.ErrTokenExpired
	}

	c.emit(ctx, shared.Event{
		Kind:       shared.EventLoanStarted,
		BookID:     rec.BookID(),
		UserID:     rec.UserID(),
		RecordID:   &recordID,
		OccurredAt: now,
	})
	return rec, nil
}

func (c *circulationCommandsImpl) CancelReservation(ctx context.Context, userID, recordID uuid.UUID) error {
	now := c.clock.Now()
	var bookID, ownerID uuid.UUID
	var promoted *promotion

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		rec, err := c.lockRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if rec.UserID() != userID {
			return errs.ErrRecordNotFound
		}
		if err := rec.Cancel(now); err != nil {
			return errs.Mark(err, errs.ErrWrongState)
		}
		if err := tx.Records().Save(ctx, rec); err != nil {
			return err
		}

		b, err := tx.Books().FindForUpdate(ctx, rec.BookID())
		if err != nil {
			return err
		}
		if err := b.ReleaseReservation(now); err != nil {
			return errs.Mark(err, errs.ErrInvariantViolation)
		}
		if err := tx.Books().Save(ctx, b); err != nil {
			return err
		}

		bookID = rec.BookID()
		ownerID = rec.UserID()
		promoted, err = promoteNext(ctx, tx, b, now, time.Duration(c.claims))
		return err
	})
	if err != nil {
		return err
	}

	c.emit(ctx, shared.Event{
		Kind:       shared.EventReservationCancelled,
		BookID:     bookID,
		UserID:     ownerID,
		RecordID:   &recordID,
		OccurredAt: now,
	})
	if promoted != nil {
		c.emitPromotion(ctx, promoted, now)
	}
	return nil
}

// Return closes a loan: fine computed exactly once from due date vs. now,
// copy back on the shelf, waitlist promoted.
func (c *circulationCommandsImpl) Return(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error) {
	now := c.clock.Now()
	var rec *circulation.Record
	var promoted *promotion

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		var err error
		rec, err = c.lockRecord(ctx, tx, recordID)
		if err != nil {
			return err
		}
		if rec.Status() != circulation.StatusBorrowed {
			return errs.ErrWrongState
		}

		fine := c.fines.Calculate(rec.DueDate(), now)
		if err := rec.CompleteReturn(now, fine); err != nil {
			return errs.Mark(err, errs.ErrWrongState)
		}
		if err := tx.Records().Save(ctx, rec); err != nil {
			return err
		}

		b, err := tx.Books().FindForUpdate(ctx, rec.BookID())
		if err != nil {
			return err
		}
		b.ReleaseLoan(now)
		if err := tx.Books().Save(ctx, b); err != nil {
			return err
		}

		promoted, err = promoteNext(ctx, tx, b, now, time.Duration(c.claims))
		return err
	})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, shared.Event{
		Kind:       shared.EventLoanReturned,
		BookID:     rec.BookID(),
		UserID:     rec.UserID(),
		RecordID:   &recordID,
		OccurredAt: now,
	})
	if !rec.FineAmount().IsZero() {
		c.emit(ctx, shared.Event{
			Kind:       shared.EventFineApplied,
			BookID:     rec.BookID(),
			UserID:     rec.UserID(),
			RecordID:   &recordID,
			OccurredAt: now,
			Meta:       map[string]any{"amount_paise": rec.FineAmount().Paise()},
		})
	}
	if promoted != nil {
		c.emitPromotion(ctx, promoted, now)
	}
	return rec, nil
}

func (c *circulationCommandsImpl) PayFine(ctx context.Context, userID, recordID uuid.UUID) (circulation.Money, error) {
	now := c.clock.Now()
	var paid circulation.Money

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		rec, err := tx.Records().FindForUpdate(ctx, recordID)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.ErrRecordNotFound
			}
			return err
		}
		if rec.UserID() != userID {
			return errs.ErrRecordNotFound
		}
		if err := rec.MarkFinePaid(now); err != nil {
			switch {
			case errs.Is(err, circulation.ErrFineAlreadyPaid):
				return errs.ErrFineAlreadyPaid
			case errs.Is(err, circulation.ErrNothingToPay):
				return errs.ErrNothingToPay
			}
			return err
		}
		paid = rec.FineAmount()
		return tx.Records().Save(ctx, rec)
	})
	if err != nil {
		return circulation.ZeroMoney(), err
	}
	return paid, nil
}

func (c *circulationCommandsImpl) PayAllFines(ctx context.Context, userID uuid.UUID) (circulation.Money, error) {
	now := c.clock.Now()
	total := circulation.ZeroMoney()

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		records, err := tx.Records().FindUnpaidFinesByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return errs.ErrNothingToPay
		}
		for _, rec := range records {
			if err := rec.MarkFinePaid(now); err != nil {
				return err
			}
			if err := tx.Records().Save(ctx, rec); err != nil {
				return err
			}
			total = total.Add(rec.FineAmount())
		}
		return nil
	})
	if err != nil {
		return circulation.ZeroMoney(), err
	}
	return total, nil
}

// SendPickupReminders is the caller-driven nudge pass over pending records:
// pickup_reminder for reservations still without a token, reservation_expiring
// with the remaining hours for tokens inside the warning window. Returns how
// many notifications went out.
func (c *circulationCommandsImpl) SendPickupReminders(ctx context.Context) (int, error) {
	now := c.clock.Now()
	var events []shared.Event

	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		events = events[:0]

		records, err := tx.Records().FindPending(ctx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			recordID := rec.ID()
			expiresAt := rec.TokenExpiresAt()

			if expiresAt == nil {
				events = append(events, shared.Event{
					Kind:       shared.EventPickupReminder,
					BookID:     rec.BookID(),
					UserID:     rec.UserID(),
					RecordID:   &recordID,
					OccurredAt: now,
				})
				continue
			}
			if rec.TokenValidAt(now) && expiresAt.Sub(now) <= time.Duration(c.reminders) {
				events = append(events, shared.Event{
					Kind:       shared.EventReservationExpiring,
					BookID:     rec.BookID(),
					UserID:     rec.UserID(),
					RecordID:   &recordID,
					OccurredAt: now,
					Meta:       map[string]any{"hours_remaining": expiresAt.Sub(now).Hours()},
				})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		c.emit(ctx, event)
	}
	return len(events), nil
}

// lockRecord resolves the record's book first and locks book-before-record so
// every command acquires locks in the same order.
func (c *circulationCommandsImpl) lockRecord(ctx context.Context, tx shared.Tx, recordID uuid.UUID) (*circulation.Record, error) {
	peek, err := tx.Records().FindByID(ctx, recordID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.ErrRecordNotFound
		}
		return nil, err
	}
	if _, err := tx.Books().FindForUpdate(ctx, peek.BookID()); err != nil {
		return nil, err
	}
	rec, err := tx.Records().FindForUpdate(ctx, recordID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// expirePendingRecord flips a pending record whose token lapsed, releases the
// reserved copy and promotes the waitlist. Runs inside the caller's tx.
func (c *circulationCommandsImpl) expirePendingRecord(ctx context.Context, tx shared.Tx, rec *circulation.Record, now time.Time) (*promotion, error) {
	if err := rec.Expire(now); err != nil {
		return nil, errs.Mark(err, errs.ErrWrongState)
	}
	if err := tx.Records().Save(ctx, rec); err != nil {
		return nil, err
	}

	b, err := tx.Books().FindForUpdate(ctx, rec.BookID())
	if err != nil {
		return nil, err
	}
	if err := b.ReleaseReservation(now); err != nil {
		return nil, errs.Mark(err, errs.ErrInvariantViolation)
	}
	if err := tx.Books().Save(ctx, b); err != nil {
		return nil, err
	}

	return promoteNext(ctx, tx, b, now, time.Duration(c.claims))
}

func (c *circulationCommandsImpl) emit(ctx context.Context, event shared.Event) {
	emitEvent(ctx, c.sink, event)
}

func (c *circulationCommandsImpl) emitPromotion(ctx context.Context, p *promotion, now time.Time) {
	emitEvent(ctx, c.sink, shared.Event{
		Kind:       shared.EventBookAvailable,
		BookID:     p.bookID,
		UserID:     p.userID,
		OccurredAt: now,
		Meta:       map[string]any{"claim_expires_at": p.claimExpiresAt},
	})
}

func ptrOf[T any](v T) *T {
	return &v
}
