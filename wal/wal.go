package wal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/infinivision/kmem/cache"
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/errmsg"
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/sum"
	"github.com/nnsgmsone/damrey/logger"
)

// New opens the log occupying blocks [start, start+size] of dev and
// installs any transaction committed before a crash.
func New(c cache.Cache, dev, start, size uint32, log logger.Log, flt fault.Fault) (*wal, error) {
	if size < constant.MaxOpBlocks || size > (constant.BlockSize-HeaderSize)/4 {
		return nil, fmt.Errorf("log size %v: %w", size, errmsg.InvalidConfig)
	}
	w := &wal{
		c:     c,
		log:   log,
		flt:   flt,
		dev:   dev,
		start: start,
		size:  size,
	}
	w.cond = sync.NewCond(&w.Mutex)
	if err := w.recover(); err != nil {
		return nil, err
	}
	return w, nil
}

// Begin waits until the log can take another op of up to
// constant.MaxOpBlocks blocks.
func (w *wal) Begin() {
	w.Lock()
	for w.committing || len(w.bns)+(w.outstanding+1)*constant.MaxOpBlocks > int(w.size) {
		w.cond.Wait()
	}
	w.outstanding++
	w.Unlock()
}

// End commits once the last outstanding op ends.
func (w *wal) End() error {
	var do bool

	w.Lock()
	w.outstanding--
	switch {
	case w.committing:
		w.Unlock()
		w.flt.Fatalf("log: end while committing")
	case w.outstanding < 0:
		w.Unlock()
		w.flt.Fatalf("log: end outside of trans")
	case w.outstanding == 0:
		do = true
		w.committing = true
	default:
		// Begin may be waiting for log space; this op's reservation is free now.
		w.cond.Broadcast()
	}
	w.Unlock()
	if !do {
		return nil
	}
	err := w.commit()
	w.Lock()
	w.committing = false
	w.cond.Broadcast()
	w.Unlock()
	return err
}

func (w *wal) Len() int {
	w.Lock()
	defer w.Unlock()
	return len(w.bns)
}

func (w *wal) Write(b *cache.Buf) {
	w.Lock()
	defer w.Unlock()
	switch {
	case w.outstanding < 1:
		w.flt.Fatalf("log_write outside of trans")
	case b.Device() != w.dev:
		w.flt.Fatalf("log_write: dev %v is not the log device", b.Device())
	}
	for _, bn := range w.bns {
		if bn == b.BlockNumber() { // absorption
			return
		}
	}
	if len(w.bns) >= int(w.size) {
		w.flt.Fatalf("log_write: too big a transaction")
	}
	w.bns = append(w.bns, b.BlockNumber())
	w.c.Pin(b)
}

func (w *wal) commit() error {
	if len(w.bns) == 0 {
		return nil
	}
	for i, bn := range w.bns {
		if err := w.copyBlock(w.start+1+uint32(i), bn, false); err != nil {
			return err
		}
	}
	if err := w.writeHead(w.bns); err != nil { // the real commit
		return err
	}
	if err := w.install(w.bns, false); err != nil {
		return err
	}
	w.bns = w.bns[:0]
	return w.writeHead(nil)
}

func (w *wal) recover() error {
	bns, err := w.readHead()
	if err != nil {
		return err
	}
	if len(bns) == 0 {
		return nil
	}
	if err := w.install(bns, true); err != nil {
		return err
	}
	return w.writeHead(nil)
}

// install copies committed blocks from the log to their home locations.
func (w *wal) install(bns []uint32, recovering bool) error {
	for i, bn := range bns {
		if err := w.copyBlock(bn, w.start+1+uint32(i), !recovering); err != nil {
			return err
		}
	}
	return nil
}

func (w *wal) copyBlock(dst, src uint32, unpin bool) error {
	to, err := w.c.Read(w.dev, dst)
	if err != nil {
		return err
	}
	defer w.c.Release(to)
	from, err := w.c.Read(w.dev, src)
	if err != nil {
		return err
	}
	defer w.c.Release(from)
	copy(to.Buffer(), from.Buffer())
	if err := w.c.Write(to); err != nil {
		w.log.Errorf("log: write block %v failed: %v\n", dst, err)
		return err
	}
	if unpin {
		w.c.Unpin(to)
	}
	return nil
}

func (w *wal) readHead() ([]uint32, error) {
	h, err := w.c.Read(w.dev, w.start)
	if err != nil {
		return nil, err
	}
	defer w.c.Release(h)
	buf := h.Buffer()
	n := binary.LittleEndian.Uint32(buf[SumSize:])
	if n > w.size {
		w.log.Errorf("log: discard header of %v blocks: %v\n", n, errmsg.BadChecksum)
		return nil, nil
	}
	if sum.Checksum(buf[SumSize:HeaderSize+4*n]) != binary.LittleEndian.Uint32(buf) {
		if n > 0 {
			w.log.Errorf("log: discard header of %v blocks: %v\n", n, errmsg.BadChecksum)
		}
		return nil, nil
	}
	bns := make([]uint32, n)
	for i := range bns {
		bns[i] = binary.LittleEndian.Uint32(buf[HeaderSize+4*i:])
	}
	return bns, nil
}

func (w *wal) writeHead(bns []uint32) error {
	h, err := w.c.Read(w.dev, w.start)
	if err != nil {
		return err
	}
	defer w.c.Release(h)
	buf := h.Buffer()
	binary.LittleEndian.PutUint32(buf[SumSize:], uint32(len(bns)))
	for i, bn := range bns {
		binary.LittleEndian.PutUint32(buf[HeaderSize+4*i:], bn)
	}
	binary.LittleEndian.PutUint32(buf, sum.Checksum(buf[SumSize:HeaderSize+4*len(bns)]))
	return w.c.Write(h)
}
