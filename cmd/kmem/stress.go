package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/core"
	"github.com/infinivision/kmem/errmsg"
	"github.com/infinivision/kmem/fault"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

type stressOptions struct {
	dev     uint32
	threads int
	blocks  uint32
	ops     int
	seed    int64
}

type worker struct {
	lat    []float64 // microseconds per op
	writes uint64
	cows   int
	ooms   int
	err    error
}

func stressCmd() *cobra.Command {
	var opt stressOptions

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer the cache and the page allocator from many goroutines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cr, err := open(cfg)
			if err != nil {
				return err
			}
			return stress(cmd, cr, cfg, opt)
		},
	}
	cmd.Flags().Uint32Var(&opt.dev, "dev", constant.RootDevice, "device to use")
	cmd.Flags().IntVar(&opt.threads, "threads", 8, "concurrent workers")
	cmd.Flags().Uint32Var(&opt.blocks, "blocks", 256, "distinct blocks touched")
	cmd.Flags().IntVar(&opt.ops, "ops", 2000, "operations per worker")
	cmd.Flags().Int64Var(&opt.seed, "seed", 1, "random seed")
	return cmd
}

func stress(cmd *cobra.Command, cr core.Core, cfg core.Config, opt stressOptions) error {
	var wg sync.WaitGroup

	first := cfg.LogStart + cfg.LogSize + 1
	if opt.blocks == 0 || uint64(first)+uint64(opt.blocks) > uint64(cfg.DeviceBlocks) {
		return fmt.Errorf("%v blocks after block %v: %w", opt.blocks, first, errmsg.InvalidConfig)
	}
	base, err := sumCounters(cr, opt.dev, first, opt.blocks)
	if err != nil {
		return err
	}
	ws := make([]*worker, opt.threads)
	for i := range ws {
		ws[i] = &worker{lat: make([]float64, 0, opt.ops)}
		wg.Add(1)
		go func(w *worker, seed int64) {
			defer wg.Done()
			w.err = w.run(cr, first, opt, rand.New(rand.NewSource(seed)))
		}(ws[i], opt.seed+int64(i))
	}
	wg.Wait()

	var lat []float64
	var writes uint64
	var cows, ooms int
	for _, w := range ws {
		if w.err != nil {
			return w.err
		}
		lat = append(lat, w.lat...)
		writes += w.writes
		cows += w.cows
		ooms += w.ooms
	}
	total, err := sumCounters(cr, opt.dev, first, opt.blocks)
	if err != nil {
		return err
	}
	total -= base
	report(cmd, cr, lat, writes, total, cows, ooms)
	if total != writes {
		return fmt.Errorf("lost updates: %v written, %v on blocks", writes, total)
	}
	return nil
}

func (w *worker) run(cr core.Core, first uint32, opt stressOptions, r *rand.Rand) (err error) {
	defer fault.Recover(&err)

	log, c, dev := cr.Log(), cr.Cache(), opt.dev
	for i := 0; i < opt.ops; i++ {
		bn := first + uint32(r.Intn(int(opt.blocks)))
		t := time.Now()
		switch {
		case i%8 == 0:
			if err := w.cow(cr); err != nil {
				return err
			}
		case i%4 == 0:
			if log != nil {
				log.Begin()
			}
			b, err := c.Read(dev, bn)
			if err != nil {
				return err
			}
			buf := b.Buffer()
			binary.LittleEndian.PutUint64(buf, binary.LittleEndian.Uint64(buf)+1)
			if log != nil {
				log.Write(b)
			} else if err := c.Write(b); err != nil {
				c.Release(b)
				return err
			}
			c.Release(b)
			if log != nil {
				if err := log.End(); err != nil {
					return err
				}
			}
			w.writes++
		default:
			b, err := c.Read(dev, bn)
			if err != nil {
				return err
			}
			c.Release(b)
		}
		w.lat = append(w.lat, float64(time.Since(t).Microseconds()))
	}
	return nil
}

// cow plays a fork followed by a write from both owners.
func (w *worker) cow(cr core.Core) error {
	a := cr.Pages()
	pa, err := a.Alloc()
	if errors.Is(err, errmsg.OutOfMemory) {
		w.ooms++
		return nil
	}
	if err != nil {
		return err
	}
	a.Ref(pa)
	child, err := a.CopyOnWrite(pa)
	if errors.Is(err, errmsg.OutOfMemory) {
		w.ooms++
		a.Free(pa)
		a.Free(pa)
		return nil
	}
	if err != nil {
		return err
	}
	parent, err := a.CopyOnWrite(pa)
	if err != nil {
		return err
	}
	if parent != pa {
		return fmt.Errorf("sole owner of %#x got a copy %#x", uint64(pa), uint64(parent))
	}
	a.Free(child)
	a.Free(parent)
	w.cows++
	return nil
}

func sumCounters(cr core.Core, dev, first, n uint32) (uint64, error) {
	var total uint64

	c := cr.Cache()
	for bn := first; bn < first+n; bn++ {
		b, err := c.Read(dev, bn)
		if err != nil {
			return 0, err
		}
		total += binary.LittleEndian.Uint64(b.Buffer())
		c.Release(b)
	}
	return total, nil
}

func report(cmd *cobra.Command, cr core.Core, lat []float64, writes, total uint64, cows, ooms int) {
	out := cmd.OutOrStdout()
	st := cr.Cache().Stats()
	bold := color.New(color.Bold)

	bold.Fprintf(out, "cache\n")
	hit := 0.0
	if n := st.Hits + st.Misses; n > 0 {
		hit = float64(st.Hits) / float64(n) * 100
	}
	fmt.Fprintf(out, "  hits %v  misses %v  evictions %v  hit rate %.1f%%\n", st.Hits, st.Misses, st.Evictions, hit)
	if len(lat) > 0 {
		sort.Float64s(lat)
		mean, std := stat.MeanStdDev(lat, nil)
		p99 := stat.Quantile(0.99, stat.Empirical, lat, nil)
		fmt.Fprintf(out, "  latency mean %.1fus  stddev %.1fus  p99 %.0fus\n", mean, std, p99)
	}
	bold.Fprintf(out, "pages\n")
	fmt.Fprintf(out, "  copy-on-write round trips %v  out of memory %v  free %v/%v\n",
		cows, ooms, cr.Pages().NumFree(), cr.Pages().NumPages())
	bold.Fprintf(out, "integrity\n")
	if total == writes {
		color.New(color.FgGreen).Fprintf(out, "  ok: %v updates\n", writes)
	} else {
		color.New(color.FgRed).Fprintf(out, "  mismatch: %v written, %v on blocks\n", writes, total)
	}
}
