package wal

import (
	"sync"

	"github.com/infinivision/kmem/cache"
	"github.com/infinivision/kmem/fault"
	"github.com/nnsgmsone/damrey/logger"
)

const (
	SumSize    = 4
	CountSize  = 4
	HeaderSize = SumSize + CountSize
)

/*
Log groups block writes into transactions that reach the disk all or
nothing.

	w.Begin()
	b, _ := c.Read(dev, bn)
	// modify b.Buffer()
	w.Write(b)
	c.Release(b)
	w.End()

Write replaces the cache's Write: it records the block and pins its
buffer until the transaction is installed. Callers must not hold any
buffer across Begin or End.
*/
type Log interface {
	Begin()
	End() error
	Len() int
	Write(*cache.Buf)
}

type wal struct {
	sync.Mutex
	cond        *sync.Cond
	c           cache.Cache
	log         logger.Log
	flt         fault.Fault
	dev         uint32
	start       uint32 // header block, data blocks follow
	size        uint32 // data blocks
	outstanding int    // ops executing
	committing  bool
	bns         []uint32 // home block numbers in the current transaction
}
