package repository

import (
	"context"
	"errors"
	"time"

	"libcirc/internal/domain/circulation"
	"libcirc/internal/infra"
	"libcirc/internal/infra/db"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const recordsTable = "circulation_records"

var recordColumns = []any{
	"id", "book_id", "user_id", "status", "created_at", "due_date",
	"pickup_token", "token_generated_at", "issued_at", "return_date",
	"fine_amount_paise", "fine_paid", "fine_paid_at", "updated_at",
}

type RecordRepository struct {
	db db.DBTX
}

func NewRecordRepository(dbtx db.DBTX) *RecordRepository {
	return &RecordRepository{db: dbtx}
}

func (r *RecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*circulation.Record, error) {
	return r.findOne(ctx, goqu.C("id").Eq(id), false)
}

func (r *RecordRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*circulation.Record, error) {
	return r.findOne(ctx, goqu.C("id").Eq(id), true)
}

func (r *RecordRepository) Create(ctx context.Context, rec *circulation.Record) error {
	query, args, err := pg.Insert(recordsTable).
		Rows(goqu.Record{
			"id":                 rec.ID(),
			"book_id":            rec.BookID(),
			"user_id":            rec.UserID(),
			"status":             string(rec.Status()),
			"created_at":         rec.CreatedAt(),
			"due_date":           rec.DueDate(),
			"pickup_token":       rec.PickupToken(),
			"token_generated_at": rec.TokenGeneratedAt(),
			"issued_at":          rec.IssuedAt(),
			"return_date":        rec.ReturnDate(),
			"fine_amount_paise":  rec.FineAmount().Paise(),
			"fine_paid":          rec.FinePaid(),
			"fine_paid_at":       rec.FinePaidAt(),
			"updated_at":         rec.UpdatedAt(),
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to build record insert", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return wrapPgError("failed to create circulation record", err)
	}
	return nil
}

func (r *RecordRepository) Save(ctx context.Context, rec *circulation.Record) error {
	query, args, err := pg.Update(recordsTable).
		Set(goqu.Record{
			"status":             string(rec.Status()),
			"due_date":           rec.DueDate(),
			"pickup_token":       rec.PickupToken(),
			"token_generated_at": rec.TokenGeneratedAt(),
			"issued_at":          rec.IssuedAt(),
			"return_date":        rec.ReturnDate(),
			"fine_amount_paise":  rec.FineAmount().Paise(),
			"fine_paid":          rec.FinePaid(),
			"fine_paid_at":       rec.FinePaidAt(),
			"updated_at":         rec.UpdatedAt(),
		}).
		Where(goqu.C("id").Eq(rec.ID())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to build record update", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapPgError("failed to save circulation record", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr(infra.KindNotFound, "circulation record not found on save", nil)
	}
	return nil
}

func (r *RecordRepository) HasActiveForUserAndBook(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	query, args, err := pg.From(recordsTable).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("book_id").Eq(bookID),
			goqu.C("status").In(string(circulation.StatusPending), string(circulation.StatusBorrowed)),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to build active record query", err)
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to count active records", err)
	}
	return count > 0, nil
}

func (r *RecordRepository) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	query, args, err := pg.From(recordsTable).
		Select(goqu.COUNT("*")).
		Where(
			goqu.C("user_id").Eq(userID),
			goqu.C("status").In(string(circulation.StatusPending), string(circulation.StatusBorrowed)),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to build active count query", err)
	}

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to count user's active records", err)
	}
	return count, nil
}

func (r *RecordRepository) SumUnpaidFinesPaise(ctx context.Context, userID uuid.UUID) (int64, error) {
	query, args, err := pg.From(recordsTable).
		Select(goqu.COALESCE(goqu.SUM("fine_amount_paise"), 0)).
		Where(unpaidFineFilter(userID)...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to build fine sum query", err)
	}

	var total int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to sum unpaid fines", err)
	}
	return total, nil
}

func (r *RecordRepository) FindUnpaidFinesByUser(ctx context.Context, userID uuid.UUID) ([]*circulation.Record, error) {
	query, args, err := pg.From(recordsTable).
		Select(recordColumns...).
		Where(unpaidFineFilter(userID)...).
		Order(goqu.C("created_at").Asc()).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build unpaid fines query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to query unpaid fines", err)
	}
	defer rows.Close()

	var records []*circulation.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate unpaid fines", err)
	}
	return records, nil
}

func (r *RecordRepository) FindPending(ctx context.Context) ([]*circulation.Record, error) {
	query, args, err := pg.From(recordsTable).
		Select(recordColumns...).
		Where(goqu.C("status").Eq(string(circulation.StatusPending))).
		Order(goqu.C("created_at").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build pending records query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to query pending records", err)
	}
	defer rows.Close()

	var records []*circulation.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate pending records", err)
	}
	return records, nil
}

func unpaidFineFilter(userID uuid.UUID) []exp.Expression {
	return []exp.Expression{
		goqu.C("user_id").Eq(userID),
		goqu.C("fine_amount_paise").Gt(0),
		goqu.C("fine_paid").IsFalse(),
	}
}

func (r *RecordRepository) findOne(ctx context.Context, where exp.Expression, lock bool) (*circulation.Record, error) {
	ds := pg.From(recordsTable).Select(recordColumns...).Where(where)
	if lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build record query", err)
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*circulation.Record, error) {
	var (
		id, bookID, userID   uuid.UUID
		status               string
		createdAt, dueDate   time.Time
		pickupToken          *string
		tokenGeneratedAt     *time.Time
		issuedAt, returnDate *time.Time
		finePaise            int64
		finePaid             bool
		finePaidAt           *time.Time
		updatedAt            time.Time
	)
	err := row.Scan(
		&id, &bookID, &userID, &status, &createdAt, &dueDate,
		&pickupToken, &tokenGeneratedAt, &issuedAt, &returnDate,
		&finePaise, &finePaid, &finePaidAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "circulation record not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan circulation record", err)
	}

	fine, err := circulation.NewMoney(finePaise)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "invalid fine amount in storage", err)
	}

	return circulation.ReconstructRecord(
		id, bookID, userID,
		circulation.Status(status),
		createdAt, dueDate,
		pickupToken,
		tokenGeneratedAt, issuedAt, returnDate,
		fine,
		finePaid,
		finePaidAt,
		updatedAt,
	), nil
}
