package errmsg

import "errors"

var (
	NotExist      = errors.New("not exist")
	ReadFailed    = errors.New("read failed")
	WriteFailed   = errors.New("write failed")
	OutOfSpace    = errors.New("out of space")
	OutOfMemory   = errors.New("out of memory")
	DeviceBusy    = errors.New("device busy")
	InvalidConfig = errors.New("invalid config")
	BadChecksum   = errors.New("bad checksum")
)
