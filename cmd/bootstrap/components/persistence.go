package components

import (
	"libcirc/internal/infra/db"
	"libcirc/internal/infra/readstore"
	"libcirc/internal/infra/uow"
	"libcirc/internal/usecase/queries"
	"libcirc/internal/usecase/shared"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var PersistenceModule = fx.Module("persistence",
	fx.Provide(
		NewDBTX,
		fx.Annotate(
			uow.NewPostgresUoW,
			fx.As(new(shared.UnitOfWork)),
		),
		fx.Annotate(
			readstore.NewCirculationReadStore,
			fx.As(new(queries.CirculationReadStore)),
		),
		fx.Annotate(
			readstore.NewBookReadStore,
			fx.As(new(queries.BookReadStore)),
		),
		fx.Annotate(
			readstore.NewWaitlistReadStore,
			fx.As(new(queries.WaitlistReadStore)),
		),
	),
)

func NewDBTX(pool *pgxpool.Pool) db.DBTX {
	return pool
}
