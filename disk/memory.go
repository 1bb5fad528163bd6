package disk

import (
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/errmsg"
)

// NewMemory returns a zeroed in-memory device of cnt blocks.
func NewMemory(cnt uint32) *memory {
	return &memory{cnt: cnt, buf: make([]byte, int(cnt)*constant.BlockSize)}
}

func (m *memory) Close() error {
	return nil
}

func (m *memory) Flush() error {
	return nil
}

func (m *memory) Blocks() uint32 {
	return m.cnt
}

func (m *memory) Read(b Block) error {
	o, err := m.offset(b)
	if err != nil {
		return err
	}
	m.RLock()
	copy(b.Buffer(), m.buf[o:o+constant.BlockSize])
	m.RUnlock()
	return nil
}

func (m *memory) Write(b Block) error {
	o, err := m.offset(b)
	if err != nil {
		return err
	}
	m.Lock()
	copy(m.buf[o:o+constant.BlockSize], b.Buffer())
	m.Unlock()
	return nil
}

func (m *memory) offset(b Block) (int, error) {
	switch {
	case b.BlockNumber() >= m.cnt:
		return 0, errmsg.OutOfSpace
	case len(b.Buffer()) != constant.BlockSize:
		return 0, errmsg.ReadFailed
	}
	return int(b.BlockNumber()) * constant.BlockSize, nil
}
