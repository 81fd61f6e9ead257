package repository

import (
	"context"
	"errors"
	"time"

	"libcirc/internal/domain/book"
	"libcirc/internal/infra"
	"libcirc/internal/infra/db"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var pg = goqu.Dialect("postgres")

const booksTable = "books"

type BookRepository struct {
	db db.DBTX
}

func NewBookRepository(dbtx db.DBTX) *BookRepository {
	return &BookRepository{db: dbtx}
}

func (r *BookRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*book.Book, error) {
	query, args, err := pg.From(booksTable).
		Select("id", "title", "author", "total_copies", "available_copies", "reserved_copies", "created_at", "updated_at").
		Where(goqu.C("id").Eq(id)).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to build book lock query", err)
	}

	return r.scanBook(r.db.QueryRow(ctx, query, args...))
}

func (r *BookRepository) Save(ctx context.Context, b *book.Book) error {
	query, args, err := pg.Update(booksTable).
		Set(goqu.Record{
			"title":            b.Title(),
			"author":           b.Author(),
			"total_copies":     b.TotalCopies(),
			"available_copies": b.AvailableCopies(),
			"reserved_copies":  b.ReservedCopies(),
			"updated_at":       b.UpdatedAt(),
		}).
		Where(goqu.C("id").Eq(b.ID())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to build book update", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to save book", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr(infra.KindNotFound, "book not found on save", nil)
	}
	return nil
}

func (r *BookRepository) scanBook(row pgx.Row) (*book.Book, error) {
	var (
		id                   uuid.UUID
		title, author        string
		total, avail, resv   int
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &title, &author, &total, &avail, &resv, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "book not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan book", err)
	}
	return book.ReconstructBook(id, title, author, total, avail, resv, createdAt, updatedAt), nil
}
