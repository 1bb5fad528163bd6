package disk

import (
	"github.com/infinivision/kmem/constant"
	"github.com/infinivision/kmem/errmsg"
	"os"

	"golang.org/x/sys/unix"
)

// New opens the image at path, creating it or growing it to hold cnt
// blocks. The image is locked exclusively until Close.
func New(path string, cnt uint32) (*disk, error) {
	fp, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0664)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(fp.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fp.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errmsg.DeviceBusy
		}
		return nil, err
	}
	st, err := fp.Stat()
	if err != nil {
		fp.Close()
		return nil, err
	}
	d := &disk{fp: fp, cnt: uint32(st.Size() / constant.BlockSize)}
	if d.cnt < cnt {
		if err := fp.Truncate(int64(cnt) * constant.BlockSize); err != nil {
			fp.Close()
			return nil, err
		}
		d.cnt = cnt
	}
	return d, nil
}

func (d *disk) Close() error {
	err := unix.Flock(int(d.fp.Fd()), unix.LOCK_UN)
	if cerr := d.fp.Close(); cerr != nil {
		return cerr
	}
	return err
}

func (d *disk) Flush() error {
	return unix.Fdatasync(int(d.fp.Fd()))
}

func (d *disk) Blocks() uint32 {
	return d.cnt
}

func (d *disk) Read(b Block) error {
	if err := d.check(b); err != nil {
		return err
	}
	n, err := d.fp.ReadAt(b.Buffer(), int64(b.BlockNumber())*constant.BlockSize)
	switch {
	case err != nil:
		return err
	case n != constant.BlockSize:
		return errmsg.ReadFailed
	}
	return nil
}

func (d *disk) Write(b Block) error {
	if err := d.check(b); err != nil {
		return err
	}
	n, err := d.fp.WriteAt(b.Buffer(), int64(b.BlockNumber())*constant.BlockSize)
	switch {
	case err != nil:
		return err
	case n != constant.BlockSize:
		return errmsg.WriteFailed
	}
	return nil
}

func (d *disk) check(b Block) error {
	switch {
	case b.BlockNumber() >= d.cnt:
		return errmsg.OutOfSpace
	case len(b.Buffer()) != constant.BlockSize:
		return errmsg.ReadFailed
	}
	return nil
}
