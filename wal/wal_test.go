package wal_test

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/infinivision/kmem/cache"
	"github.com/infinivision/kmem/clock"
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/disk"
	"github.com/infinivision/kmem/errmsg"
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/sum"
	"github.com/infinivision/kmem/wal"
	"github.com/nnsgmsone/damrey/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	dev   = uint32(1)
	start = uint32(2)
	size  = uint32(constant.LogSize)
)

type block struct {
	bn  uint32
	buf []byte
}

func (b *block) Device() uint32      { return dev }
func (b *block) BlockNumber() uint32 { return b.bn }
func (b *block) Buffer() []byte      { return b.buf }

func newBlock(bn uint32) *block {
	return &block{bn, make([]byte, constant.BlockSize)}
}

var _ = Describe("Log", func() {
	var (
		m   disk.Disk
		c   cache.Cache
		log logger.Log
		flt fault.Fault
	)

	onDisk := func(bn uint32) []byte {
		b := newBlock(bn)
		Expect(m.Read(b)).To(Succeed())
		return b.buf
	}

	open := func() wal.Log {
		s := disk.NewSet()
		Expect(s.Attach(dev, m)).To(Succeed())
		c = cache.New(constant.NBuf, constant.NBucket, s, clock.New(time.Hour), flt)
		w, err := wal.New(c, dev, start, size, log, flt)
		Expect(err).NotTo(HaveOccurred())
		return w
	}

	update := func(w wal.Log, bn uint32, v string) {
		b, err := c.Read(dev, bn)
		Expect(err).NotTo(HaveOccurred())
		copy(b.Buffer(), v)
		w.Write(b)
		c.Release(b)
	}

	BeforeEach(func() {
		m = disk.NewMemory(128)
		log = logger.New(io.Discard, "wal")
		flt = fault.New(log)
	})

	It("should install a transaction on End", func() {
		w := open()
		w.Begin()
		update(w, 60, "hello")
		update(w, 61, "world")
		Expect(w.Len()).To(Equal(2))
		Expect(onDisk(60)[0]).To(BeZero())
		Expect(w.End()).To(Succeed())

		Expect(string(onDisk(60)[:5])).To(Equal("hello"))
		Expect(string(onDisk(61)[:5])).To(Equal("world"))
		Expect(w.Len()).To(BeZero())
		Expect(binary.LittleEndian.Uint32(onDisk(start)[wal.SumSize:])).To(BeZero())
	})

	It("should absorb repeated writes of a block", func() {
		w := open()
		w.Begin()
		update(w, 70, "first")
		update(w, 70, "again")
		Expect(w.Len()).To(Equal(1))
		Expect(w.End()).To(Succeed())
		Expect(string(onDisk(70)[:5])).To(Equal("again"))
	})

	It("should commit only when the last op ends", func() {
		w := open()
		w.Begin()
		w.Begin()
		update(w, 80, "inner")
		Expect(w.End()).To(Succeed())
		Expect(w.Len()).To(Equal(1))
		Expect(onDisk(80)[0]).To(BeZero())
		Expect(w.End()).To(Succeed())
		Expect(string(onDisk(80)[:5])).To(Equal("inner"))
	})

	It("should commit concurrent ops", func() {
		var wg sync.WaitGroup

		w := open()
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(bn uint32) {
				defer GinkgoRecover()
				defer wg.Done()
				for j := 0; j < 10; j++ {
					w.Begin()
					update(w, bn, "op")
					Expect(w.End()).To(Succeed())
				}
			}(uint32(90 + i))
		}
		wg.Wait()
		for i := 0; i < 8; i++ {
			Expect(string(onDisk(uint32(90 + i))[:2])).To(Equal("op"))
		}
	})

	It("should replay a committed transaction on open", func() {
		hd := newBlock(start)
		binary.LittleEndian.PutUint32(hd.buf[wal.SumSize:], 2)
		binary.LittleEndian.PutUint32(hd.buf[wal.HeaderSize:], 100)
		binary.LittleEndian.PutUint32(hd.buf[wal.HeaderSize+4:], 101)
		binary.LittleEndian.PutUint32(hd.buf, sum.Checksum(hd.buf[wal.SumSize:wal.HeaderSize+8]))
		Expect(m.Write(hd)).To(Succeed())
		for i, v := range []string{"crash", "proof"} {
			b := newBlock(start + 1 + uint32(i))
			copy(b.buf, v)
			Expect(m.Write(b)).To(Succeed())
		}

		open()
		Expect(string(onDisk(100)[:5])).To(Equal("crash"))
		Expect(string(onDisk(101)[:5])).To(Equal("proof"))
		Expect(binary.LittleEndian.Uint32(onDisk(start)[wal.SumSize:])).To(BeZero())
	})

	It("should ignore a header with a bad checksum", func() {
		hd := newBlock(start)
		binary.LittleEndian.PutUint32(hd.buf[wal.SumSize:], 1)
		binary.LittleEndian.PutUint32(hd.buf[wal.HeaderSize:], 100)
		Expect(m.Write(hd)).To(Succeed())
		b := newBlock(start + 1)
		copy(b.buf, "junk")
		Expect(m.Write(b)).To(Succeed())

		open()
		Expect(onDisk(100)[0]).To(BeZero())
	})

	It("should reject a log smaller than one op", func() {
		s := disk.NewSet()
		Expect(s.Attach(dev, m)).To(Succeed())
		c = cache.New(constant.NBuf, constant.NBucket, s, clock.New(time.Hour), flt)
		_, err := wal.New(c, dev, start, constant.MaxOpBlocks-1, log, flt)
		Expect(err).To(MatchError(errmsg.InvalidConfig))
	})

	It("should treat writes outside a transaction as fatal", func() {
		w := open()
		b, err := c.Read(dev, 60)
		Expect(err).NotTo(HaveOccurred())
		Expect(func() { w.Write(b) }).To(PanicWith(MatchError("log_write outside of trans")))
		c.Release(b)
		Expect(func() { w.End() }).To(PanicWith(MatchError("log: end outside of trans")))
	})

	It("should treat an oversized transaction as fatal", func() {
		s := disk.NewSet()
		Expect(s.Attach(dev, m)).To(Succeed())
		c = cache.New(constant.NBuf, constant.NBucket, s, clock.New(time.Hour), flt)
		w, err := wal.New(c, dev, start, constant.MaxOpBlocks, log, flt)
		Expect(err).NotTo(HaveOccurred())

		w.Begin()
		for bn := uint32(40); bn < 40+constant.MaxOpBlocks; bn++ {
			update(w, bn, "x")
		}
		b, err := c.Read(dev, 60)
		Expect(err).NotTo(HaveOccurred())
		Expect(func() { w.Write(b) }).To(PanicWith(MatchError("log_write: too big a transaction")))
		c.Release(b)
	})
})
