package kalloc

import (
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/errmsg"
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/stack"
)

// New manages npage pages starting at physical address base.
func New(base uint64, npage int, flt fault.Fault) *allocator {
	if flt == nil {
		fault.Panic("kinit: no fault handler")
	}
	if npage <= 0 || base == 0 || base%constant.PageSize != 0 {
		flt.Fatalf("kinit: base %#x, %v pages", base, npage)
	}
	a := &allocator{
		base:  Addr(base),
		npage: npage,
		flt:   flt,
		mem:   make([]byte, npage*constant.PageSize),
		ref:   make([]int32, npage),
		free:  stack.New[int](npage),
	}
	a.reflk.Init("pgref")
	a.freelk.Init("kmem")
	for i := npage - 1; i >= 0; i-- {
		fill(a.page(i), constant.FreeJunk)
		a.free.Push(i)
	}
	return a
}

func (a *allocator) NumPages() int {
	return a.npage
}

func (a *allocator) NumFree() int {
	a.freelk.Lock()
	defer a.freelk.Unlock()
	return a.free.Len()
}

// Alloc returns a junk-filled page owned once, or errmsg.OutOfMemory.
func (a *allocator) Alloc() (Addr, error) {
	i, ok := a.pop()
	if !ok {
		return 0, errmsg.OutOfMemory
	}
	fill(a.page(i), constant.AllocJunk)
	a.reflk.Lock()
	a.ref[i] = 1
	a.reflk.Unlock()
	return a.addr(i), nil
}

// Free drops one reference and reclaims the page when none remain.
func (a *allocator) Free(pa Addr) {
	i := a.index(pa, "kfree")
	a.reflk.Lock()
	if a.ref[i] <= 0 {
		a.reflk.Unlock()
		a.flt.Fatalf("kfree: %#x not allocated", uint64(pa))
	}
	if a.ref[i]--; a.ref[i] == 0 {
		fill(a.page(i), constant.FreeJunk)
		a.freelk.Lock()
		a.free.Push(i)
		a.freelk.Unlock()
	}
	a.reflk.Unlock()
}

func (a *allocator) Ref(pa Addr) {
	i := a.index(pa, "krefpage")
	a.reflk.Lock()
	if a.ref[i] <= 0 {
		a.reflk.Unlock()
		a.flt.Fatalf("krefpage: %#x not allocated", uint64(pa))
	}
	a.ref[i]++
	a.reflk.Unlock()
}

// CopyOnWrite turns the caller's share of pa into a private copy. A page
// with no other owner is returned as is. On errmsg.OutOfMemory pa and
// its count are untouched.
func (a *allocator) CopyOnWrite(pa Addr) (Addr, error) {
	i := a.index(pa, "kcopy_n_deref")
	a.reflk.Lock()
	defer a.reflk.Unlock()
	if a.ref[i] <= 1 {
		return pa, nil
	}
	j, ok := a.pop()
	if !ok {
		return 0, errmsg.OutOfMemory
	}
	copy(a.page(j), a.page(i))
	a.ref[j] = 1
	a.ref[i]--
	return a.addr(j), nil
}

// Bytes returns the page's memory. Only an owner that holds the sole
// reference may write it.
func (a *allocator) Bytes(pa Addr) []byte {
	return a.page(a.index(pa, "kbytes"))
}

func (a *allocator) RefCount(pa Addr) int {
	i := a.index(pa, "krefcount")
	a.reflk.Lock()
	defer a.reflk.Unlock()
	return int(a.ref[i])
}

func (a *allocator) pop() (int, bool) {
	a.freelk.Lock()
	defer a.freelk.Unlock()
	if a.free.IsEmpty() {
		return 0, false
	}
	return a.free.Pop()
}

func (a *allocator) index(pa Addr, op string) int {
	if uint64(pa)%constant.PageSize != 0 || pa < a.base || uint64(pa-a.base)/constant.PageSize >= uint64(a.npage) {
		a.flt.Fatalf("%s: bad address %#x", op, uint64(pa))
	}
	return int(uint64(pa-a.base) / constant.PageSize)
}

func (a *allocator) addr(i int) Addr {
	return a.base + Addr(i)*constant.PageSize
}

func (a *allocator) page(i int) []byte {
	return a.mem[i*constant.PageSize : (i+1)*constant.PageSize : (i+1)*constant.PageSize]
}

func fill(p []byte, v byte) {
	for i := range p {
		p[i] = v
	}
}
