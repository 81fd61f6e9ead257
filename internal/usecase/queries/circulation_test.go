//go:build unit

package queries_test

import (
	"context"
	"testing"
	"time"

	"libcirc/internal/domain/circulation"
	"libcirc/internal/pkg/clock"
	"libcirc/internal/usecase/queries"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type stubReadStore struct {
	pending []*queries.PendingPickupView
	fines   []*queries.FineView
}

func (s *stubReadStore) RecordsByUser(context.Context, uuid.UUID) ([]*queries.RecordView, error) {
	return nil, nil
}

func (s *stubReadStore) PendingByUser(context.Context, uuid.UUID) ([]*queries.PendingPickupView, error) {
	return s.pending, nil
}

func (s *stubReadStore) FinesByUser(context.Context, uuid.UUID) ([]*queries.FineView, error) {
	return s.fines, nil
}

type stubBookReadStore struct{}

func (stubBookReadStore) AvailabilityByID(context.Context, uuid.UUID) (*queries.AvailabilityView, error) {
	return nil, nil
}

type stubWaitlistReadStore struct{}

func (stubWaitlistReadStore) PositionFor(context.Context, uuid.UUID, uuid.UUID) (*queries.WaitlistPositionView, error) {
	return nil, nil
}

func newQueries(store *stubReadStore, clk clock.Clock) queries.CirculationQueries {
	return queries.NewCirculationQueries(store, stubBookReadStore{}, stubWaitlistReadStore{}, clk)
}

func TestListPendingPickups_Countdown(t *testing.T) {
	tokenAt := baseTime.Add(-6 * time.Hour)
	expiresAt := tokenAt.Add(circulation.TokenTTL)

	withToken := &queries.PendingPickupView{
		RecordID:         uuid.New(),
		BookTitle:        "The Go Programming Language",
		CreatedAt:        tokenAt,
		TokenGeneratedAt: &tokenAt,
	}
	withoutToken := &queries.PendingPickupView{
		RecordID:  uuid.New(),
		BookTitle: "Clean Architecture",
		CreatedAt: baseTime,
	}

	store := &stubReadStore{pending: []*queries.PendingPickupView{withToken, withoutToken}}
	q := newQueries(store, clock.NewMockClock(baseTime))

	views, err := q.ListPendingPickups(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, views, 2)

	hours := 18.0
	want := &queries.PendingPickupView{
		RecordID:         withToken.RecordID,
		BookTitle:        "The Go Programming Language",
		CreatedAt:        tokenAt,
		TokenGeneratedAt: &tokenAt,
		TokenExpiresAt:   &expiresAt,
		HoursRemaining:   &hours,
	}
	if diff := cmp.Diff(want, views[0]); diff != "" {
		t.Errorf("pending pickup view mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, views[1].TokenExpiresAt, "no countdown without a token")
	assert.Nil(t, views[1].HoursRemaining)
}

func TestListPendingPickups_LapsedCountdownFloorsAtZero(t *testing.T) {
	tokenAt := baseTime.Add(-30 * time.Hour)
	store := &stubReadStore{pending: []*queries.PendingPickupView{
		{RecordID: uuid.New(), TokenGeneratedAt: &tokenAt},
	}}
	q := newQueries(store, clock.NewMockClock(baseTime))

	views, err := q.ListPendingPickups(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].HoursRemaining)
	assert.Zero(t, *views[0].HoursRemaining)
}

func TestListFines_TotalsUnpaidOnly(t *testing.T) {
	paidAt := baseTime.Add(-time.Hour)
	store := &stubReadStore{fines: []*queries.FineView{
		{RecordID: uuid.New(), FineAmountPaise: 500, FineDisplay: "₹5.00"},
		{RecordID: uuid.New(), FineAmountPaise: 1500, FineDisplay: "₹15.00"},
		{RecordID: uuid.New(), FineAmountPaise: 1000, FineDisplay: "₹10.00", FinePaid: true, FinePaidAt: &paidAt},
	}}
	q := newQueries(store, clock.NewMockClock(baseTime))

	summary, err := q.ListFines(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, int64(2000), summary.TotalUnpaidPaise, "paid fines stay listed but do not count")
	assert.Equal(t, "₹20.00", summary.TotalDisplay)
	assert.Len(t, summary.Fines, 3)
}

func TestListFines_Empty(t *testing.T) {
	q := newQueries(&stubReadStore{}, clock.NewMockClock(baseTime))

	summary, err := q.ListFines(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, summary.TotalUnpaidPaise)
	assert.Equal(t, "₹0.00", summary.TotalDisplay)
	assert.Empty(t, summary.Fines)
}
