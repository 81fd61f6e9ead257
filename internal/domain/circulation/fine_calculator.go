package circulation

import "time"

// FineCalculator computes the overdue charge for a closed loan. Pure:
// deterministic given its inputs, no I/O.
type FineCalculator interface {
	Calculate(dueDate, returnDate time.Time) Money
}

// DailyFineCalculator charges a flat rate per whole calendar day overdue.
// Days are compared by date, not by elapsed hours: returning at 23:59 the day
// after the due date is one day overdue regardless of the due time.
type DailyFineCalculator struct {
	RatePerDay Money
}

func NewDailyFineCalculator(ratePerDay Money) *DailyFineCalculator {
	return &DailyFineCalculator{RatePerDay: ratePerDay}
}

func (c *DailyFineCalculator) Calculate(dueDate, returnDate time.Time) Money {
	days := daysBetweenDates(dueDate, returnDate)
	if days <= 0 {
		return ZeroMoney()
	}
	return c.RatePerDay.MultiplyDays(days)
}

func daysBetweenDates(from, to time.Time) int64 {
	fromDate := truncateToDate(from)
	toDate := truncateToDate(to)
	return int64(toDate.Sub(fromDate).Hours() / 24)
}

func truncateToDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
