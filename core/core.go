package core

import (
	"fmt"
	"os"

	"github.com/infinivision/kmem/cache"
	"github.com/infinivision/kmem/clock"
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/disk"
	"github.com/infinivision/kmem/errmsg"
	"github.com/infinivision/kmem/fault"
	"github.com/infinivision/kmem/kalloc"
	"github.com/infinivision/kmem/wal"
	"github.com/nnsgmsone/damrey/logger"
)

func DefaultConfig() Config {
	return Config{
		Buffers:      constant.NBuf,
		Buckets:      constant.NBucket,
		Pages:        constant.NPage,
		PhysBase:     constant.PhysBase,
		Devices:      map[uint32]string{constant.RootDevice: ""},
		DeviceBlocks: constant.DeviceBlocks,
		LogDevice:    constant.RootDevice,
		LogStart:     constant.LogStart,
		LogSize:      constant.LogSize,
		LogWriter:    os.Stderr,
		TickCycle:    constant.TickCycle,
	}
}

func (cfg Config) Validate() error {
	switch {
	case cfg.Buffers <= 0:
		return fmt.Errorf("%v buffers: %w", cfg.Buffers, errmsg.InvalidConfig)
	case cfg.Buckets <= 0:
		return fmt.Errorf("%v buckets: %w", cfg.Buckets, errmsg.InvalidConfig)
	case cfg.Pages <= 0:
		return fmt.Errorf("%v pages: %w", cfg.Pages, errmsg.InvalidConfig)
	case cfg.PhysBase == 0 || cfg.PhysBase%constant.PageSize != 0:
		return fmt.Errorf("physical base %#x: %w", cfg.PhysBase, errmsg.InvalidConfig)
	case cfg.DeviceBlocks == 0:
		return fmt.Errorf("0 blocks per device: %w", errmsg.InvalidConfig)
	case cfg.TickCycle <= 0:
		return fmt.Errorf("tick cycle %v: %w", cfg.TickCycle, errmsg.InvalidConfig)
	case cfg.LogWriter == nil:
		return fmt.Errorf("no log writer: %w", errmsg.InvalidConfig)
	}
	if cfg.LogSize == 0 {
		return nil
	}
	if _, ok := cfg.Devices[cfg.LogDevice]; !ok {
		return fmt.Errorf("log device %v: %w", cfg.LogDevice, errmsg.InvalidConfig)
	}
	if uint64(cfg.LogStart)+uint64(cfg.LogSize) >= uint64(cfg.DeviceBlocks) {
		return fmt.Errorf("log [%v, %v] beyond %v blocks: %w", cfg.LogStart, cfg.LogStart+cfg.LogSize, cfg.DeviceBlocks, errmsg.InvalidConfig)
	}
	// a full log pins LogSize buffers and commit holds two more
	if cfg.Buffers < int(cfg.LogSize)+2 {
		return fmt.Errorf("%v buffers for a log of %v: %w", cfg.Buffers, cfg.LogSize, errmsg.InvalidConfig)
	}
	return nil
}

func Open(cfg Config) (*core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogWriter, "kmem")
	flt := fault.New(log)
	ds, err := openDevices(cfg)
	if err != nil {
		return nil, err
	}
	clk := clock.New(cfg.TickCycle)
	cr := &core{
		ds:  ds,
		clk: clk,
		log: log,
		c:   cache.New(cfg.Buffers, cfg.Buckets, ds, clk, flt),
		a:   kalloc.New(cfg.PhysBase, cfg.Pages, flt),
	}
	if cfg.LogSize > 0 {
		if cr.w, err = cr.openLog(cfg, flt); err != nil {
			return nil, err
		}
	}
	go clk.Run()
	return cr, nil
}

// openLog recovers the log, closing the devices if recovery fails or
// reaches the fatal path.
func (cr *core) openLog(cfg Config, flt fault.Fault) (wal.Log, error) {
	ok := false
	defer func() {
		if !ok {
			cr.ds.Close()
		}
	}()
	w, err := wal.New(cr.c, cfg.LogDevice, cfg.LogStart, cfg.LogSize, cr.log, flt)
	if err != nil {
		return nil, err
	}
	ok = true
	return w, nil
}

func (cr *core) Close() error {
	cr.clk.Stop()
	if err := cr.ds.Flush(); err != nil {
		cr.log.Errorf("close: %v\n", err)
	}
	return cr.ds.Close()
}

func (cr *core) Flush() error {
	return cr.ds.Flush()
}

// Log is nil when the config disables the log.
func (cr *core) Log() wal.Log {
	return cr.w
}

func (cr *core) Clock() clock.Clock {
	return cr.clk
}

func (cr *core) Cache() cache.Cache {
	return cr.c
}

func (cr *core) Pages() kalloc.Allocator {
	return cr.a
}

func openDevices(cfg Config) (disk.Set, error) {
	ds := disk.NewSet()
	for dev, path := range cfg.Devices {
		var d disk.Disk

		switch path {
		case "":
			d = disk.NewMemory(cfg.DeviceBlocks)
		default:
			fd, err := disk.New(path, cfg.DeviceBlocks)
			if err != nil {
				ds.Close()
				return nil, fmt.Errorf("open device %v at '%s': %w", dev, path, err)
			}
			d = fd
		}
		if err := ds.Attach(dev, d); err != nil {
			d.Close()
			ds.Close()
			return nil, err
		}
	}
	return ds, nil
}
