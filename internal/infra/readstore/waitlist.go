package readstore

import (
	"context"
	"errors"

	"libcirc/internal/infra"
	"libcirc/internal/infra/db"
	"libcirc/internal/usecase/queries"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type WaitlistReadStore struct {
	db db.DBTX
}

func NewWaitlistReadStore(dbtx db.DBTX) *WaitlistReadStore {
	return &WaitlistReadStore{db: dbtx}
}

func (r *WaitlistReadStore) PositionFor(ctx context.Context, userID, bookID uuid.UUID) (*queries.WaitlistPositionView, error) {
	query, args, err := pg.From("waitlist_entries").
		Select("book_id", "user_id", "position", "joined_at", "notified_at", "claim_expires_at").
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("book_id").Eq(bookID),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build position query", err)
	}

	v := &queries.WaitlistPositionView{}
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&v.BookID, &v.UserID, &v.Position, &v.JoinedAt, &v.NotifiedAt, &v.ClaimExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "waitlist entry not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan waitlist position", err)
	}
	return v, nil
}

var _ queries.WaitlistReadStore = (*WaitlistReadStore)(nil)
