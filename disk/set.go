package disk

import (
	"fmt"

	"github.com/infinivision/kmem/errmsg"
)

func NewSet() *set {
	return &set{mp: make(map[uint32]Disk)}
}

func (s *set) Attach(dev uint32, d Disk) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.mp[dev]; ok {
		return fmt.Errorf("device %v: %w", dev, errmsg.DeviceBusy)
	}
	s.mp[dev] = d
	return nil
}

func (s *set) Device(dev uint32) (Disk, bool) {
	s.RLock()
	defer s.RUnlock()
	d, ok := s.mp[dev]
	return d, ok
}

func (s *set) Transfer(b Block, write bool) error {
	d, ok := s.Device(b.Device())
	if !ok {
		return fmt.Errorf("device %v: %w", b.Device(), errmsg.NotExist)
	}
	if write {
		return d.Write(b)
	}
	return d.Read(b)
}

func (s *set) Flush() error {
	s.RLock()
	defer s.RUnlock()
	for dev, d := range s.mp {
		if err := d.Flush(); err != nil {
			return fmt.Errorf("flush device %v: %w", dev, err)
		}
	}
	return nil
}

func (s *set) Close() error {
	var err error

	s.Lock()
	defer s.Unlock()
	for dev, d := range s.mp {
		if e := d.Close(); e != nil && err == nil {
			err = fmt.Errorf("close device %v: %w", dev, e)
		}
		delete(s.mp, dev)
	}
	return err
}
