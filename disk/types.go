package disk

import (
	"os"
	"sync"
)

// Block is one disk block as seen by the device: an identity and a
// payload of exactly constant.BlockSize bytes.
type Block interface {
	Device() uint32
	BlockNumber() uint32
	Buffer() []byte
}

type Disk interface {
	Close() error
	Flush() error
	Blocks() uint32
	Read(Block) error
	Write(Block) error
}

// Transfer fills (write == false) or flushes (write == true) a block's
// payload. It is synchronous from the caller's point of view.
type Transfer interface {
	Transfer(Block, bool) error
}

// Set routes transfers to the disk attached under the block's device id.
type Set interface {
	Transfer
	Close() error
	Flush() error
	Attach(uint32, Disk) error
	Device(uint32) (Disk, bool)
}

type disk struct {
	cnt uint32 // block count
	fp  *os.File
}

type memory struct {
	sync.RWMutex
	cnt uint32
	buf []byte
}

type set struct {
	sync.RWMutex
	mp map[uint32]Disk
}
