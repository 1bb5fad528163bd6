package kalloc_test

import (
	"bytes"
	"sync"

	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/errmsg"
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/kalloc"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const base = constant.PhysBase

var _ = Describe("Allocator", func() {
	var a kalloc.Allocator

	BeforeEach(func() {
		a = kalloc.New(base, 8, fault.New(nil))
	})

	It("should hand out junk-filled pages owned once", func() {
		pa, err := a.Alloc()
		Expect(err).NotTo(HaveOccurred())
		Expect(uint64(pa) % constant.PageSize).To(BeZero())
		Expect(a.RefCount(pa)).To(Equal(1))
		Expect(a.Bytes(pa)).To(Equal(bytes.Repeat([]byte{constant.AllocJunk}, constant.PageSize)))
		Expect(a.NumFree()).To(Equal(7))
	})

	It("should reclaim a page when the last owner frees it", func() {
		pa, _ := a.Alloc()
		a.Free(pa)
		Expect(a.RefCount(pa)).To(BeZero())
		Expect(a.NumFree()).To(Equal(8))
		Expect(a.Bytes(pa)).To(Equal(bytes.Repeat([]byte{constant.FreeJunk}, constant.PageSize)))

		again, err := a.Alloc()
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(pa))
		Expect(a.RefCount(again)).To(Equal(1))
	})

	It("should keep a shared page until every owner frees it", func() {
		pa, _ := a.Alloc()
		a.Ref(pa)
		Expect(a.RefCount(pa)).To(Equal(2))
		copy(a.Bytes(pa), "shared")

		a.Free(pa)
		Expect(a.RefCount(pa)).To(Equal(1))
		Expect(a.NumFree()).To(Equal(7))
		Expect(string(a.Bytes(pa)[:6])).To(Equal("shared"))

		a.Free(pa)
		Expect(a.NumFree()).To(Equal(8))
	})

	It("should report out of memory without failing", func() {
		for i := 0; i < 8; i++ {
			_, err := a.Alloc()
			Expect(err).NotTo(HaveOccurred())
		}
		_, err := a.Alloc()
		Expect(err).To(MatchError(errmsg.OutOfMemory))
	})

	It("should treat bad addresses as fatal", func() {
		Expect(func() { a.Free(kalloc.Addr(base + 1)) }).To(PanicWith(MatchError("kfree: bad address 0x80000001")))
		Expect(func() { a.Free(kalloc.Addr(base - constant.PageSize)) }).To(PanicWith(BeAssignableToTypeOf(&fault.Error{})))
		Expect(func() { a.Ref(kalloc.Addr(base + 8*constant.PageSize)) }).To(PanicWith(MatchError(ContainSubstring("krefpage: bad address"))))
		Expect(func() { a.CopyOnWrite(0) }).To(PanicWith(MatchError(ContainSubstring("kcopy_n_deref"))))
	})

	It("should refuse to start without a fault handler", func() {
		Expect(func() { kalloc.New(base, 8, nil) }).To(PanicWith(MatchError("kinit: no fault handler")))
	})

	It("should treat a double free as fatal", func() {
		pa, _ := a.Alloc()
		a.Free(pa)
		Expect(func() { a.Free(pa) }).To(PanicWith(MatchError(ContainSubstring("not allocated"))))
		Expect(a.NumFree()).To(Equal(8))
	})

	It("should treat a reference to a free page as fatal", func() {
		pa, _ := a.Alloc()
		a.Free(pa)
		Expect(func() { a.Ref(pa) }).To(PanicWith(MatchError(ContainSubstring("krefpage: %#x not allocated", uint64(pa)))))
		Expect(a.RefCount(pa)).To(BeZero())
		Expect(a.NumFree()).To(Equal(8))

		x, err := a.Alloc()
		Expect(err).NotTo(HaveOccurred())
		y, err := a.Alloc()
		Expect(err).NotTo(HaveOccurred())
		Expect(x).NotTo(Equal(y))
	})

	Context("copy on write", func() {
		It("should detach a private copy and then write in place", func() {
			pa, _ := a.Alloc()
			copy(a.Bytes(pa), "parent")
			a.Ref(pa)

			cp, err := a.CopyOnWrite(pa)
			Expect(err).NotTo(HaveOccurred())
			Expect(cp).NotTo(Equal(pa))
			Expect(a.Bytes(cp)).To(Equal(a.Bytes(pa)))
			Expect(a.RefCount(cp)).To(Equal(1))
			Expect(a.RefCount(pa)).To(Equal(1))

			same, err := a.CopyOnWrite(pa)
			Expect(err).NotTo(HaveOccurred())
			Expect(same).To(Equal(pa))
			Expect(a.RefCount(pa)).To(Equal(1))
			Expect(a.NumFree()).To(Equal(6))
		})

		It("should leave the original untouched when out of memory", func() {
			pa, _ := a.Alloc()
			a.Ref(pa)
			for i := 0; i < 7; i++ {
				_, err := a.Alloc()
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := a.CopyOnWrite(pa)
			Expect(err).To(MatchError(errmsg.OutOfMemory))
			Expect(a.RefCount(pa)).To(Equal(2))
		})

		It("should give racing owners one copy and the original", func() {
			for round := 0; round < 100; round++ {
				var wg sync.WaitGroup

				pa, _ := a.Alloc()
				a.Ref(pa)
				got := make([]kalloc.Addr, 2)
				for i := range got {
					wg.Add(1)
					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()
						cp, err := a.CopyOnWrite(pa)
						Expect(err).NotTo(HaveOccurred())
						got[i] = cp
					}(i)
				}
				wg.Wait()
				Expect(got).To(ContainElement(pa))
				Expect(got[0]).NotTo(Equal(got[1]))
				Expect(a.RefCount(pa)).To(Equal(1))
				Expect(a.NumFree()).To(Equal(6))
				for _, p := range got {
					a.Free(p)
				}
				Expect(a.NumFree()).To(Equal(8))
			}
		})
	})

	It("should never hand out a page twice under contention", func() {
		var wg sync.WaitGroup
		var mu sync.Mutex

		a = kalloc.New(base, 64, fault.New(nil))
		owned := make(map[kalloc.Addr]bool)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for i := 0; i < 200; i++ {
					pa, err := a.Alloc()
					if err != nil {
						Expect(err).To(MatchError(errmsg.OutOfMemory))
						continue
					}
					mu.Lock()
					Expect(owned[pa]).To(BeFalse())
					owned[pa] = true
					mu.Unlock()

					mu.Lock()
					delete(owned, pa)
					mu.Unlock()
					a.Free(pa)
				}
			}()
		}
		wg.Wait()
		Expect(a.NumFree()).To(Equal(64))
	})
})
