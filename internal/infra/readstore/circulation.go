package readstore

import (
	"context"

	"libcirc/internal/domain/circulation"
	"libcirc/internal/infra"
	"libcirc/internal/infra/db"
	"libcirc/internal/usecase/queries"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
)

var pg = goqu.Dialect("postgres")

type CirculationReadStore struct {
	db db.DBTX
}

func NewCirculationReadStore(dbtx db.DBTX) *CirculationReadStore {
	return &CirculationReadStore{db: dbtx}
}

func (r *CirculationReadStore) RecordsByUser(ctx context.Context, userID uuid.UUID) ([]*queries.RecordView, error) {
	query, args, err := pg.From(goqu.T("circulation_records").As("cr")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("cr.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("cr.id"), goqu.I("cr.book_id"), goqu.I("b.title"), goqu.I("b.author"),
			goqu.I("cr.user_id"), goqu.I("cr.status"), goqu.I("cr.created_at"), goqu.I("cr.due_date"),
			goqu.I("cr.issued_at"), goqu.I("cr.return_date"),
			goqu.I("cr.fine_amount_paise"), goqu.I("cr.fine_paid"),
		).
		Where(goqu.I("cr.user_id").Eq(userID)).
		Order(goqu.I("cr.created_at").Desc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build record list query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to query records", err)
	}
	defer rows.Close()

	var views []*queries.RecordView
	for rows.Next() {
		v := &queries.RecordView{}
		err := rows.Scan(
			&v.ID, &v.BookID, &v.BookTitle, &v.BookAuthor,
			&v.UserID, &v.Status, &v.CreatedAt, &v.DueDate,
			&v.IssuedAt, &v.ReturnDate,
			&v.FineAmountPaise, &v.FinePaid,
		)
		if err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan record view", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate record views", err)
	}
	return views, nil
}

func (r *CirculationReadStore) PendingByUser(ctx context.Context, userID uuid.UUID) ([]*queries.PendingPickupView, error) {
	query, args, err := pg.From(goqu.T("circulation_records").As("cr")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("cr.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("cr.id"), goqu.I("cr.book_id"), goqu.I("b.title"),
			goqu.I("cr.created_at"), goqu.I("cr.token_generated_at"),
		).
		Where(
			goqu.I("cr.user_id").Eq(userID),
			goqu.I("cr.status").Eq(string(circulation.StatusPending)),
		).
		Order(goqu.I("cr.created_at").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build pending pickup query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to query pending pickups", err)
	}
	defer rows.Close()

	var views []*queries.PendingPickupView
	for rows.Next() {
		v := &queries.PendingPickupView{}
		if err := rows.Scan(&v.RecordID, &v.BookID, &v.BookTitle, &v.CreatedAt, &v.TokenGeneratedAt); err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan pending pickup", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate pending pickups", err)
	}
	return views, nil
}

func (r *CirculationReadStore) FinesByUser(ctx context.Context, userID uuid.UUID) ([]*queries.FineView, error) {
	query, args, err := pg.From(goqu.T("circulation_records").As("cr")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("cr.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("cr.id"), goqu.I("b.title"), goqu.I("cr.due_date"), goqu.I("cr.return_date"),
			goqu.I("cr.fine_amount_paise"), goqu.I("cr.fine_paid"), goqu.I("cr.fine_paid_at"),
		).
		Where(
			goqu.I("cr.user_id").Eq(userID),
			goqu.I("cr.fine_amount_paise").Gt(0),
		).
		Order(goqu.I("cr.due_date").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build fine list query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to query fines", err)
	}
	defer rows.Close()

	var views []*queries.FineView
	for rows.Next() {
		v := &queries.FineView{}
		if err := rows.Scan(&v.RecordID, &v.BookTitle, &v.DueDate, &v.ReturnDate, &v.FineAmountPaise, &v.FinePaid, &v.FinePaidAt); err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan fine view", err)
		}
		if m, merr := circulation.NewMoney(v.FineAmountPaise); merr == nil {
			v.FineDisplay = m.String()
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate fine views", err)
	}
	return views, nil
}

var _ queries.CirculationReadStore = (*CirculationReadStore)(nil)
