package clock

import "time"

// Clock is a monotonically increasing tick counter.
type Clock interface {
	Run()
	Stop()
	Tick() uint64
	Ticks() uint64
}

type clock struct {
	ticks uint64
	cycle time.Duration
	ch    chan struct{}
}
