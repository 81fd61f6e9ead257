package repository

import (
	"context"
	"errors"
	"time"

	"libcirc/internal/domain/waitlist"
	"libcirc/internal/infra"
	"libcirc/internal/infra/db"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const waitlistTable = "waitlist_entries"

var waitlistColumns = []any{
	"id", "book_id", "user_id", "position", "joined_at", "notified_at", "claim_expires_at",
}

type WaitlistRepository struct {
	db db.DBTX
}

func NewWaitlistRepository(dbtx db.DBTX) *WaitlistRepository {
	return &WaitlistRepository{db: dbtx}
}

func (r *WaitlistRepository) FindByBook(ctx context.Context, bookID uuid.UUID) ([]*waitlist.Entry, error) {
	query, args, err := pg.From(waitlistTable).
		Select(waitlistColumns...).
		Where(goqu.C("book_id").Eq(bookID)).
		Order(goqu.C("position").Asc()).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build waitlist query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to query waitlist", err)
	}
	defer rows.Close()

	var entries []*waitlist.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate waitlist", err)
	}
	return entries, nil
}

func (r *WaitlistRepository) FindByUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (*waitlist.Entry, error) {
	query, args, err := pg.From(waitlistTable).
		Select(waitlistColumns...).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("book_id").Eq(bookID),
		).
		Order(goqu.C("joined_at").Desc()).
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build waitlist entry query", err)
	}

	return scanEntry(r.db.QueryRow(ctx, query, args...))
}

func (r *WaitlistRepository) Create(ctx context.Context, e *waitlist.Entry) error {
	query, args, err := pg.Insert(waitlistTable).
		Rows(goqu.Record{
			"id":               e.ID(),
			"book_id":          e.BookID(),
			"user_id":          e.UserID(),
			"position":         e.Position(),
			"joined_at":        e.JoinedAt(),
			"notified_at":      e.NotifiedAt(),
			"claim_expires_at": e.ClaimExpiresAt(),
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to build waitlist insert", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return wrapPgError("failed to create waitlist entry", err)
	}
	return nil
}

func (r *WaitlistRepository) Save(ctx context.Context, e *waitlist.Entry) error {
	query, args, err := pg.Update(waitlistTable).
		Set(goqu.Record{
			"position":         e.Position(),
			"notified_at":      e.NotifiedAt(),
			"claim_expires_at": e.ClaimExpiresAt(),
		}).
		Where(goqu.C("id").Eq(e.ID())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to build waitlist update", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to save waitlist entry", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr(infra.KindNotFound, "waitlist entry not found on save", nil)
	}
	return nil
}

func (r *WaitlistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := pg.Delete(waitlistTable).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to build waitlist delete", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to delete waitlist entry", err)
	}
	return nil
}

func (r *WaitlistRepository) BookIDsWithLapsedClaims(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query, args, err := pg.From(waitlistTable).
		SelectDistinct("book_id").
		Where(
			goqu.C("claim_expires_at").IsNotNull(),
			goqu.C("claim_expires_at").Lte(now),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build lapsed claim query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to query lapsed claims", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan book id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate lapsed claims", err)
	}
	return ids, nil
}

func scanEntry(row pgx.Row) (*waitlist.Entry, error) {
	var (
		id, bookID, userID         uuid.UUID
		position                   int
		joinedAt                   time.Time
		notifiedAt, claimExpiresAt *time.Time
	)
	if err := row.Scan(&id, &bookID, &userID, &position, &joinedAt, &notifiedAt, &claimExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "waitlist entry not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan waitlist entry", err)
	}
	return waitlist.ReconstructEntry(id, bookID, userID, position, joinedAt, notifiedAt, claimExpiresAt), nil
}
