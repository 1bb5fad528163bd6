package cache

import (
	"github.com/infinivision/kmem/clock"
	"github.com/infinivision/kmem/disk"
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/sleeplock"
	"github.com/infinivision/kmem/spinlock"
	"github.com/rs/xid"
)

/*
Cache maps (device, block number) to one of a fixed pool of buffers.

Get and Read return a content-locked handle. Write flushes the payload
and Release gives the handle back; both require the handle's content
lock to still be held. A handle must not be used after Release.
Pin and Unpin keep a buffer resident across other holders' Get and
Release without touching its content lock.
*/
type Cache interface {
	Get(uint32, uint32) *Buf
	Read(uint32, uint32) (*Buf, error)
	Write(*Buf) error
	Release(*Buf)
	Pin(*Buf)
	Unpin(*Buf)
	Stats() Stats
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Buf is one holder's handle on a buffer.
type Buf struct {
	b  *buffer
	id xid.ID
}

type buffer struct {
	// guarded by the bucket lock of the buffer's current bucket
	used    bool // dev and bn identify a block
	dev     uint32
	bn      uint32
	ref     int
	lastuse uint64
	next    *buffer

	// guarded by lk
	valid bool
	lk    sleeplock.Lock
	data  []byte
}

type bucket struct {
	lk   spinlock.Lock
	head *buffer
}

type cache struct {
	bufs      []buffer
	buckets   []bucket
	evict     []spinlock.Lock // eviction serialization, per target bucket
	clk       clock.Clock
	dev       disk.Transfer
	flt       fault.Fault
	hits      uint64
	misses    uint64
	evictions uint64
}

func (h *Buf) Device() uint32 {
	return h.b.dev
}

func (h *Buf) BlockNumber() uint32 {
	return h.b.bn
}

// Buffer returns the payload. Only the content-lock holder may touch it.
func (h *Buf) Buffer() []byte {
	return h.b.data
}
