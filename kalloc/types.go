package kalloc

import (
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/spinlock"
	"github.com/infinivision/kmem/stack"
)

// Addr is the physical address of a page.
type Addr uint64

/*
Allocator hands out whole physical pages and counts, per page, how many
logical owners share it.

Counts are taken per owner, not per mapping: an owner that mapped the
same page twice would be counted once, and the page could be freed
while still mapped. Callers must map a shared page at most once per
owner.
*/
type Allocator interface {
	Alloc() (Addr, error)
	Free(Addr)
	Ref(Addr)
	CopyOnWrite(Addr) (Addr, error)
	Bytes(Addr) []byte
	RefCount(Addr) int
	NumFree() int
	NumPages() int
}

type allocator struct {
	base  Addr
	npage int
	mem   []byte
	flt   fault.Fault

	reflk spinlock.Lock // taken before freelk
	ref   []int32

	freelk spinlock.Lock
	free   stack.Stack[int]
}
