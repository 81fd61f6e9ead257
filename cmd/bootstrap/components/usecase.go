package components

import (
	"libcirc/internal/domain/circulation"
	"libcirc/internal/pkg/clock"
	"libcirc/internal/pkg/config"
	"libcirc/internal/usecase"
	"libcirc/internal/usecase/commands"
	"libcirc/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseCommandsModule,
	usecaseQueriesModule,
	usecaseValidatorsModule,
)

var usecaseBaseOption = fx.Provide(
	clock.NewRealClock,
	NewBorrowingPolicy,
	NewFineCalculator,
	NewClaimWindow,
	NewReminderWindow,
)

func NewBorrowingPolicy(cfg config.Config) (circulation.BorrowingPolicy, error) {
	finePerDay, err := circulation.NewMoney(cfg.Circulation.FinePerDayPaise)
	if err != nil {
		return circulation.BorrowingPolicy{}, err
	}
	return circulation.NewBorrowingPolicy(cfg.Circulation.BorrowLimit, cfg.Circulation.BorrowPeriodDays, finePerDay)
}

func NewFineCalculator(policy circulation.BorrowingPolicy) circulation.FineCalculator {
	return circulation.NewDailyFineCalculator(policy.FinePerDay)
}

func NewClaimWindow(cfg config.Config) commands.ClaimWindow {
	return commands.ClaimWindow(cfg.Circulation.ClaimWindow)
}

func NewReminderWindow(cfg config.Config) commands.ReminderWindow {
	return commands.ReminderWindow(cfg.Circulation.ReminderWindow)
}

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		commands.NewCirculationCommands,
		commands.NewWaitlistCommands,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewCirculationQueries,
	),
)

var usecaseValidatorsModule = fx.Module("usecase/validators",
	fx.Provide(
		usecase.NewTokenValidator,
	),
)
