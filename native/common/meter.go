package common

import (
	"errors"
	"math"
)

var ErrBudgetExhausted = errors.New("execution budget exhausted")

// Meter tracks the execution budget of a single call. A nil meter is
// unlimited.
type Meter struct {
	limit    uint64
	consumed uint64
}

func NewMeter(limit uint64) *Meter {
	return &Meter{limit: limit}
}

// Remaining returns the unspent budget.
func (m *Meter) Remaining() uint64 {
	if m == nil {
		return math.MaxUint64
	}
	if m.consumed >= m.limit {
		return 0
	}
	return m.limit - m.consumed
}

func (m *Meter) Consumed() uint64 {
	if m == nil {
		return 0
	}
	return m.consumed
}

// Consume charges n units. When the budget cannot cover the charge the counter
// is left untouched and ErrBudgetExhausted is returned.
func (m *Meter) Consume(n uint64) error {
	if m == nil || n == 0 {
		return nil
	}
	if n > m.Remaining() {
		return ErrBudgetExhausted
	}
	m.consumed += n
	return nil
}
