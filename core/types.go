package core

import (
	"io"
	"time"

	"github.com/infinivision/kmem/cache"
	"github.com/infinivision/kmem/clock"
	"github.com/infinivision/kmem/disk"
	"github.com/infinivision/kmem/kalloc"
	"github.com/infinivision/kmem/wal"
	"github.com/nnsgmsone/damrey/logger"
)

/*
Core is the kernel memory core: the block cache over the attached
devices, the physical page allocator, and the block log. Core is
thread-safe.
*/
type Core interface {
	Close() error
	Flush() error

	Log() wal.Log
	Clock() clock.Clock
	Cache() cache.Cache
	Pages() kalloc.Allocator
}

type Config struct {
	Buffers      int               // cache buffers
	Buckets      int               // cache hash buckets
	Pages        int               // physical pages
	PhysBase     uint64            // address of the first page
	Devices      map[uint32]string // device id to image path, "" for a memory device
	DeviceBlocks uint32            // minimum blocks per device
	LogDevice    uint32
	LogStart     uint32
	LogSize      uint32 // 0 disables the log
	LogWriter    io.Writer
	TickCycle    time.Duration
}

type core struct {
	w   wal.Log
	c   cache.Cache
	a   kalloc.Allocator
	clk clock.Clock
	ds  disk.Set
	log logger.Log
}
