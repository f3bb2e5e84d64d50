package model

import (
	"sync/atomic"
	"time"
)

/*
Budget limits the search by iterations count and time,
the search goes on while fewer than MinIterations are done or the time is not out
unless it is canceled
*/
type Budget struct {
	MinIterations   int
	MaxTrainingTime time.Duration

	start    time.Time
	canceled atomic.Bool
	now      func() time.Time
}

func NewBudget(minIterations int, maxTime time.Duration) *Budget {
	return &Budget{MinIterations: minIterations, MaxTrainingTime: maxTime, now: time.Now}
}

// Begin records the start time
func (b *Budget) Begin() {
	b.start = b.now()
}

func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}

/*
Continue reports one more iteration can be started after the given count of done ones
*/
func (b *Budget) Continue(iterations int) bool {
	if b.canceled.Load() {
		return false
	}
	return iterations < b.MinIterations || b.Elapsed() < b.MaxTrainingTime
}

/*
Cancel requests the search to stop at the next iteration boundary
*/
func (b *Budget) Cancel() {
	b.canceled.Store(true)
}

func (b *Budget) Canceled() bool {
	return b.canceled.Load()
}
