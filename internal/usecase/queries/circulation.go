package queries

import (
	"context"

	"libcirc/internal/domain/circulation"
	"libcirc/internal/pkg/clock"

	"github.com/google/uuid"
)

type CirculationQueries interface {
	ListRecords(ctx context.Context, userID uuid.UUID) ([]*RecordView, error)
	ListPendingPickups(ctx context.Context, userID uuid.UUID) ([]*PendingPickupView, error)
	ListFines(ctx context.Context, userID uuid.UUID) (*FinesSummary, error)
	BookAvailability(ctx context.Context, bookID uuid.UUID) (*AvailabilityView, error)
	WaitlistPosition(ctx context.Context, userID, bookID uuid.UUID) (*WaitlistPositionView, error)
}

type CirculationReadStore interface {
	RecordsByUser(ctx context.Context, userID uuid.UUID) ([]*RecordView, error)
	PendingByUser(ctx context.Context, userID uuid.UUID) ([]*PendingPickupView, error)
	FinesByUser(ctx context.Context, userID uuid.UUID) ([]*FineView, error)
}

type BookReadStore interface {
	AvailabilityByID(ctx context.Context, bookID uuid.UUID) (*AvailabilityView, error)
}

type WaitlistReadStore interface {
	PositionFor(ctx context.Context, userID, bookID uuid.UUID) (*WaitlistPositionView, error)
}

type circulationQueriesImpl struct {
	records  CirculationReadStore
	books    BookReadStore
	waitlist WaitlistReadStore
	clock    clock.Clock
}

func NewCirculationQueries(records CirculationReadStore, books BookReadStore, waitlist WaitlistReadStore, clk clock.Clock) CirculationQueries {
	return &circulationQueriesImpl{
		records:  records,
		books:    books,
		waitlist: waitlist,
		clock:    clk,
	}
}

func (q *circulationQueriesImpl) ListRecords(ctx context.Context, userID uuid.UUID) ([]*RecordView, error) {
	return q.records.RecordsByUser(ctx, userID)
}

// ListPendingPickups fills in the countdown fields for records that already
// hold a token; records still waiting for one come back with nil countdowns.
func (q *circulationQueriesImpl) ListPendingPickups(ctx context.Context, userID uuid.UUID) ([]*PendingPickupView, error) {
	views, err := q.records.PendingByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := q.clock.Now()
	for _, v := range views {
		if v.TokenGeneratedAt == nil {
			continue
		}
		expiresAt := v.TokenGeneratedAt.Add(circulation.TokenTTL)
		v.TokenExpiresAt = &expiresAt

		hours := expiresAt.Sub(now).Hours()
		if hours < 0 {
			hours = 0
		}
		v.HoursRemaining = &hours
	}
	return views, nil
}

func (q *circulationQueriesImpl) ListFines(ctx context.Context, userID uuid.UUID) (*FinesSummary, error) {
	fines, err := q.records.FinesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var totalUnpaid int64
	for _, f := range fines {
		if !f.FinePaid {
			totalUnpaid += f.FineAmountPaise
		}
	}

	total, err := circulation.NewMoney(totalUnpaid)
	if err != nil {
		return nil, err
	}

	return &FinesSummary{
		TotalUnpaidPaise: totalUnpaid,
		TotalDisplay:     total.String(),
		Fines:            fines,
	}, nil
}

func (q *circulationQueriesImpl) BookAvailability(ctx context.Context, bookID uuid.UUID) (*AvailabilityView, error) {
	return q.books.AvailabilityByID(ctx, bookID)
}

func (q *circulationQueriesImpl) WaitlistPosition(ctx context.Context, userID, bookID uuid.UUID) (*WaitlistPositionView, error) {
	return q.waitlist.PositionFor(ctx, userID, bookID)
}
