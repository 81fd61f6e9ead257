//go:build unit

package circulation_test

import (
	"testing"
	"time"

	"libcirc/internal/domain/circulation"

	"github.com/stretchr/testify/assert"
)

func TestDailyFineCalculator_Calculate(t *testing.T) {
	calc := circulation.NewDailyFineCalculator(circulation.MustMoney(500))
	due := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)

	testCases := []struct {
		name          string
		returnDate    time.Time
		expectedPaise int64
	}{
		{
			name:          "returned on the due date",
			returnDate:    time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC),
			expectedPaise: 0,
		},
		{
			name:          "returned one day late",
			returnDate:    time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC),
			expectedPaise: 500,
		},
		{
			name:          "returned early",
			returnDate:    time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC),
			expectedPaise: 0,
		},
		{
			name:          "returned a week late",
			returnDate:    time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
			expectedPaise: 3500,
		},
		{
			name:          "time of day does not matter",
			returnDate:    time.Date(2025, 3, 11, 23, 59, 59, 0, time.UTC),
			expectedPaise: 500,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fine := calc.Calculate(due, tc.returnDate)
			assert.Equal(t, tc.expectedPaise, fine.Paise())
		})
	}
}

func TestDailyFineCalculator_EarlyMorningDueLateNightReturn(t *testing.T) {
	calc := circulation.NewDailyFineCalculator(circulation.MustMoney(500))

	// Due just after midnight, returned just before the next midnight:
	// almost 48 elapsed hours but only one calendar day apart.
	due := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	returned := time.Date(2025, 3, 11, 23, 55, 0, 0, time.UTC)

	assert.Equal(t, int64(500), calc.Calculate(due, returned).Paise())
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "₹5.00", circulation.MustMoney(500).String())
	assert.Equal(t, "₹0.50", circulation.MustMoney(50).String())
	assert.Equal(t, "₹12.05", circulation.MustMoney(1205).String())
}

func TestNewMoney_RejectsNegative(t *testing.T) {
	_, err := circulation.NewMoney(-1)
	assert.Error(t, err)
}
