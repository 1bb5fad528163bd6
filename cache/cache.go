package cache

import (
	"sync/atomic"

	"github.com/infinivision/kmem/clock"
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/disk"
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/spinlock"
	"github.com/rs/xid"
)

func New(nbuf, nbucket int, d disk.Transfer, clk clock.Clock, flt fault.Fault) *cache {
	if flt == nil {
		fault.Panic("binit: no fault handler")
	}
	if nbuf <= 0 || nbucket <= 0 || d == nil || clk == nil {
		flt.Fatalf("binit: %v buffers, %v buckets", nbuf, nbucket)
	}
	c := &cache{
		dev:     d,
		clk:     clk,
		flt:     flt,
		bufs:    make([]buffer, nbuf),
		buckets: make([]bucket, nbucket),
		evict:   make([]spinlock.Lock, nbucket),
	}
	for i := range c.buckets {
		c.buckets[i].lk.Init("bcache.bucket")
		c.evict[i].Init("bcache.evict")
	}
	data := make([]byte, nbuf*constant.BlockSize)
	for i := range c.bufs {
		b := &c.bufs[i]
		b.lk.Init("buffer")
		b.data = data[i*constant.BlockSize : (i+1)*constant.BlockSize : (i+1)*constant.BlockSize]
		c.buckets[i%nbucket].push(b)
	}
	return c
}

func (c *cache) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
}

// Get returns a locked handle on block bn of device dev, recycling the
// least recently released unreferenced buffer when it is not cached.
func (c *cache) Get(dev, bn uint32) *Buf {
	key := c.hash(dev, bn)
	bk := &c.buckets[key]

	bk.lk.Lock()
	if b := bk.search(dev, bn); b != nil {
		b.ref++
		bk.lk.Unlock()
		atomic.AddUint64(&c.hits, 1)
		return c.hold(b)
	}
	// Scanning the other buckets with bk held would take bucket locks
	// out of index order.
	bk.lk.Unlock()

	c.evict[key].Lock()
	bk.lk.Lock()
	if b := bk.search(dev, bn); b != nil {
		b.ref++
		bk.lk.Unlock()
		c.evict[key].Unlock()
		atomic.AddUint64(&c.hits, 1)
		return c.hold(b)
	}
	bk.lk.Unlock()

	// Only bucket locks with lower index than i are held when taking i.
	var prev, least *buffer
	holding := -1
	for i := range c.buckets {
		c.buckets[i].lk.Lock()
		found := false
		for p, b := (*buffer)(nil), c.buckets[i].head; b != nil; p, b = b, b.next {
			if b.ref == 0 && (least == nil || b.lastuse < least.lastuse) {
				prev, least, found = p, b, true
			}
		}
		switch {
		case !found:
			c.buckets[i].lk.Unlock()
		default:
			if holding != -1 {
				c.buckets[holding].lk.Unlock()
			}
			holding = i
		}
	}
	if least == nil {
		c.evict[key].Unlock()
		c.flt.Fatalf("bget: no buffers")
	}
	c.buckets[holding].unlink(prev, least)
	if holding != key {
		c.buckets[holding].lk.Unlock()
		bk.lk.Lock()
	}
	if bk.search(dev, bn) != nil {
		bk.lk.Unlock()
		c.evict[key].Unlock()
		c.flt.Fatalf("bget: duplicate buffer for dev %v block %v", dev, bn)
	}
	if least.used {
		atomic.AddUint64(&c.evictions, 1)
	}
	least.used = true
	least.dev = dev
	least.bn = bn
	least.ref = 1
	least.valid = false
	bk.push(least)
	bk.lk.Unlock()
	c.evict[key].Unlock()
	atomic.AddUint64(&c.misses, 1)
	return c.hold(least)
}

// Read is Get plus loading the block from disk when it is not valid.
func (c *cache) Read(dev, bn uint32) (*Buf, error) {
	h := c.Get(dev, bn)
	if !h.b.valid {
		if err := c.dev.Transfer(h, false); err != nil {
			c.Release(h)
			return nil, err
		}
		h.b.valid = true
	}
	return h, nil
}

func (c *cache) Write(h *Buf) error {
	if !h.b.lk.Holding(h.id) {
		c.flt.Fatalf("bwrite")
	}
	return c.dev.Transfer(h, true)
}

func (c *cache) Release(h *Buf) {
	if !h.b.lk.Holding(h.id) {
		c.flt.Fatalf("brelse")
	}
	h.b.lk.Release(h.id)
	c.deref(h.b, "brelse")
}

func (c *cache) Pin(h *Buf) {
	bk := &c.buckets[c.hash(h.b.dev, h.b.bn)]
	bk.lk.Lock()
	h.b.ref++
	bk.lk.Unlock()
}

func (c *cache) Unpin(h *Buf) {
	c.deref(h.b, "bunpin")
}

func (c *cache) deref(b *buffer, op string) {
	bk := &c.buckets[c.hash(b.dev, b.bn)]
	bk.lk.Lock()
	if b.ref <= 0 {
		bk.lk.Unlock()
		c.flt.Fatalf("%s: dev %v block %v not referenced", op, b.dev, b.bn)
	}
	if b.ref--; b.ref == 0 {
		b.lastuse = c.clk.Ticks()
	}
	bk.lk.Unlock()
}

func (c *cache) hold(b *buffer) *Buf {
	h := &Buf{b: b, id: xid.New()}
	b.lk.Acquire(h.id)
	return h
}

func (c *cache) hash(dev, bn uint32) int {
	return int((uint64(dev)<<constant.DeviceShift | uint64(bn)) % uint64(len(c.buckets)))
}

func (bk *bucket) search(dev, bn uint32) *buffer {
	bk.mustHold()
	for b := bk.head; b != nil; b = b.next {
		if b.used && b.dev == dev && b.bn == bn {
			return b
		}
	}
	return nil
}

func (bk *bucket) push(b *buffer) {
	b.next = bk.head
	bk.head = b
}

func (bk *bucket) unlink(prev, b *buffer) {
	bk.mustHold()
	if prev == nil {
		bk.head = b.next
	} else {
		prev.next = b.next
	}
	b.next = nil
}

func (bk *bucket) mustHold() {
	if !bk.lk.Holding() {
		fault.Panic("bcache: bucket not locked")
	}
}
