package fault

import "github.com/nnsgmsone/damrey/logger"

// Fault reports an unrecoverable error. Fatalf never returns.
type Fault interface {
	Fatalf(string, ...interface{})
}

// Error is the panic value of every fatal report.
type Error struct {
	msg string
}

type fault struct {
	log logger.Log
}

func (e *Error) Error() string {
	return e.msg
}
