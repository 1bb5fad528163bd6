package sleeplock

import (
	"sync"

	"github.com/infinivision/kmem/fault"
	"github.com/rs/xid"
)

func New(name string) *Lock {
	l := new(Lock)
	l.Init(name)
	return l
}

func (l *Lock) Init(name string) {
	l.lk.Init("sleep lock")
	l.cond = sync.NewCond(&l.lk)
	l.name = name
	l.locked = false
	l.holder = xid.NilID()
}

func (l *Lock) Acquire(id xid.ID) {
	if id.IsNil() {
		fault.Panic("acquiresleep " + l.name + ": nil holder")
	}
	l.lk.Lock()
	for l.locked {
		l.cond.Wait()
	}
	l.locked = true
	l.holder = id
	l.lk.Unlock()
}

func (l *Lock) Release(id xid.ID) {
	l.lk.Lock()
	if !l.locked || l.holder != id {
		l.lk.Unlock()
		fault.Panic("releasesleep " + l.name)
	}
	l.locked = false
	l.holder = xid.NilID()
	l.cond.Signal()
	l.lk.Unlock()
}

// Holding reports whether id currently holds the lock.
func (l *Lock) Holding(id xid.ID) bool {
	l.lk.Lock()
	r := l.locked && l.holder == id
	l.lk.Unlock()
	return r
}
