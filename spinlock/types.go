package spinlock

import "sync/atomic"

// Lock is a short-hold mutual-exclusion lock. It never parks the
// goroutine and must not be held across a blocking operation.
// Lock implements sync.Locker.
type Lock struct {
	name   string
	locked atomic.Bool
}
