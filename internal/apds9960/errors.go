package apds9960

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrUsage marks invalid caller input. State is never mutated.
	ErrUsage = errors.New("apds9960: usage error")
	// ErrIO marks a failed register transfer.
	ErrIO = errors.New("apds9960: i/o error")
)

// Error carries the operation that failed and its kind.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func usageError(op string, format string, args ...any) error {
	return &Error{Kind: ErrUsage, Op: op, Err: fmt.Errorf(format, args...)}
}

func ioError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && errors.Is(err, ErrIO) {
		return err
	}
	return &Error{Kind: ErrIO, Op: op, Err: err}
}
