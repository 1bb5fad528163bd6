package spinlock

import (
	"runtime"

	"github.com/infinivision/kmem/fault"
)

// Init names a Lock embedded by value in a larger structure.
func (lk *Lock) Init(name string) {
	lk.name = name
	lk.locked.Store(false)
}

func (lk *Lock) Lock() {
	for !lk.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (lk *Lock) Unlock() {
	if !lk.locked.CompareAndSwap(true, false) {
		fault.Panic("release " + lk.name)
	}
}

// Holding reports whether someone holds the lock. There is no cpu
// identity to compare against, so this only detects a lock that is free.
func (lk *Lock) Holding() bool {
	return lk.locked.Load()
}
