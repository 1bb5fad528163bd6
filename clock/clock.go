package clock

import (
	"sync/atomic"
	"time"
)

func New(cycle time.Duration) *clock {
	return &clock{
		cycle: cycle,
		ch:    make(chan struct{}),
	}
}

// Run advances the counter once per cycle until Stop.
func (c *clock) Run() {
	ticker := time.NewTicker(c.cycle)
	defer ticker.Stop()
	for {
		select {
		case <-c.ch:
			c.ch <- struct{}{}
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

func (c *clock) Stop() {
	c.ch <- struct{}{}
	<-c.ch
}

func (c *clock) Tick() uint64 {
	return atomic.AddUint64(&c.ticks, 1)
}

func (c *clock) Ticks() uint64 {
	return atomic.LoadUint64(&c.ticks)
}
