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

type BookReadStore struct {
	db db.DBTX
}

func NewBookReadStore(dbtx db.DBTX) *BookReadStore {
	return &BookReadStore{db: dbtx}
}

func (r *BookReadStore) AvailabilityByID(ctx context.Context, bookID uuid.UUID) (*queries.AvailabilityView, error) {
	waitlistCount := pg.From("waitlist_entries").
		Select(goqu.COUNT("*")).
		Where(goqu.I("waitlist_entries.book_id").Eq(goqu.I("b.id")))

	query, args, err := pg.From(goqu.T("books").As("b")).
		Select(
			goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.author"),
			goqu.I("b.total_copies"), goqu.I("b.available_copies"), goqu.I("b.reserved_copies"),
			waitlistCount.As("waitlist_length"),
		).
		Where(goqu.I("b.id").Eq(bookID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build availability query", err)
	}

	v := &queries.AvailabilityView{}
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&v.BookID, &v.Title, &v.Author,
		&v.TotalCopies, &v.AvailableCopies, &v.ReservedCopies,
		&v.WaitlistLength,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "book not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan availability", err)
	}

	v.EffectivelyAvailable = v.AvailableCopies - v.ReservedCopies
	if v.EffectivelyAvailable < 0 {
		v.EffectivelyAvailable = 0
	}
	return v, nil
}

var _ queries.BookReadStore = (*BookReadStore)(nil)
