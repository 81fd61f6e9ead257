package circulation

import (
	"errors"
	"fmt"
	"time"
)

// Money is an amount in paise (1/100 rupee), which keeps fine arithmetic
// exact with two fractional digits.
type Money struct {
	paise int64
}

func NewMoney(paise int64) (Money, error) {
	if paise < 0 {
		return Money{}, errors.New("money cannot be negative")
	}
	return Money{paise: paise}, nil
}

func MustMoney(paise int64) Money {
	m, err := NewMoney(paise)
	if err != nil {
		panic(err)
	}
	return m
}

func ZeroMoney() Money {
	return Money{}
}

func (m Money) Paise() int64 {
	return m.paise
}

func (m Money) Rupees() float64 {
	return float64(m.paise) / 100.0
}

func (m Money) IsZero() bool {
	return m.paise == 0
}

func (m Money) Add(other Money) Money {
	return Money{paise: m.paise + other.paise}
}

func (m Money) MultiplyDays(days int64) Money {
	return Money{paise: m.paise * days}
}

func (m Money) String() string {
	return fmt.Sprintf("₹%d.%02d", m.paise/100, m.paise%100)
}

// BorrowingPolicy is the lending policy applied at reservation and pickup
// time. Period re-anchors at the actual pickup moment, not the reservation
// moment.
type BorrowingPolicy struct {
	Limit      int
	Period     time.Duration
	FinePerDay Money
}

func NewBorrowingPolicy(limit, periodDays int, finePerDay Money) (BorrowingPolicy, error) {
	if limit <= 0 {
		return BorrowingPolicy{}, errors.New("borrowing limit must be positive")
	}
	if periodDays <= 0 {
		return BorrowingPolicy{}, errors.New("borrowing period must be positive")
	}
	return BorrowingPolicy{
		Limit:      limit,
		Period:     time.Duration(periodDays) * 24 * time.Hour,
		FinePerDay: finePerDay,
	}, nil
}
