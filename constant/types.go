package constant

import "time"

var (
	TickCycle = 100 * time.Millisecond
)

const (
	BlockSize = 1024 // 1k
)

const (
	NBuf        = 64 // buffers in the cache, more than LogSize
	NBucket     = 13 // hash buckets, prime
	DeviceShift = 27
)

const (
	PageSize = 4096 // 4k
	NPage    = 8192 // 32MB
	PhysBase = uint64(0x80000000)
)

const (
	AllocJunk = byte(5) // fill of a freshly allocated page
	FreeJunk  = byte(1) // fill of a freed page
)

const (
	MaxOpBlocks  = 10              // max blocks a single op writes
	LogSize      = MaxOpBlocks * 3 // max data blocks in the log
	DeviceBlocks = 2000
)

const (
	RootDevice = uint32(1)
	LogStart   = uint32(2)
)
