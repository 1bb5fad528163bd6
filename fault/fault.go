package fault

import (
	"fmt"

	"github.com/nnsgmsone/damrey/logger"
)

func New(log logger.Log) *fault {
	return &fault{log}
}

func (f *fault) Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if f.log != nil {
		f.log.Errorf("panic: %s\n", msg)
	}
	panic(&Error{msg})
}

// Panic raises msg without logging, for layers below the logger.
func Panic(msg string) {
	panic(&Error{msg})
}

// Recover converts a fatal report back into an error. It must be deferred
// directly; other panics are re-raised.
func Recover(err *error) {
	switch r := recover().(type) {
	case nil:
	case *Error:
		*err = r
	default:
		panic(r)
	}
}
