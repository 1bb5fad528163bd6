package sleeplock

import (
	"sync"

	"github.com/infinivision/kmem/spinlock"
	"github.com/rs/xid"
)

// Lock is a long-term lock. A contended Acquire parks the calling
// goroutine until the holder releases. The holder is identified by
// the id passed to Acquire.
type Lock struct {
	lk     spinlock.Lock // protects this sleep lock
	cond   *sync.Cond
	locked bool
	holder xid.ID
	name   string
}
