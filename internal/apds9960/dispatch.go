package apds9960

import (
	"context"
	"log/slog"
)

// writeRetries is the number of attempts for each write-bearing dispatch step.
const writeRetries = 3

// ServiceInterrupt runs one interrupt-servicing cycle:
//
//  1. read STATUS and GSTATUS;
//  2. invoke cb once per set bit, STATUS bits first, in priority order;
//  3. clear the non-gesture interrupt latches;
//  4. pulse GFIFO_CLR in GCONF4;
//  5. drain the pending gesture events and report each one;
//  6. restart recognition if anything was reported.
//
// cb may re-enter the decoder on state (typically from InterruptFIFOValid);
// events it produces are reported in step 5 of the same cycle. A failed
// status read aborts before anything is mutated. cb may be nil.
func ServiceInterrupt(state *DecoderState, regs Registers, cb Callback) error {
	return serviceInterrupt(state, regs, cb, retryPolicy{logger: discardLogger})
}

// retryPolicy carries the observers for failed write attempts.
type retryPolicy struct {
	logger  *slog.Logger
	onRetry func(op string)
}

func serviceInterrupt(state *DecoderState, regs Registers, cb Callback, rp retryPolicy) error {
	var status, gstatus [1]byte
	if err := regs.ReadRegister(RegStatus, status[:]); err != nil {
		return ioError("read status", err)
	}
	if err := regs.ReadRegister(RegGStatus, gstatus[:]); err != nil {
		return ioError("read gesture status", err)
	}

	notify := func(tag Interrupt) {
		if cb != nil {
			cb(tag)
		}
	}

	for _, b := range primaryStatusOrder {
		if status[0]&b.mask != 0 {
			notify(b.tag)
		}
	}
	for _, b := range gestureStatusOrder {
		if gstatus[0]&b.mask != 0 {
			notify(b.tag)
		}
	}

	if err := rp.run("clear interrupts", func() error {
		return regs.WriteRegister(RegAIClear, []byte{0})
	}); err != nil {
		return err
	}

	if err := rp.run("clear gesture fifo", func() error {
		var conf [1]byte
		if err := regs.ReadRegister(RegGConf4, conf[:]); err != nil {
			return err
		}
		conf[0] |= gconf4FIFOClear
		return regs.WriteRegister(RegGConf4, conf[:])
	}); err != nil {
		return err
	}

	events := state.TakePending()
	events.Each(notify)
	if !events.Empty() {
		state.Reset()
	}
	return nil
}

// run calls fn until it succeeds or writeRetries attempts have failed.
func (rp retryPolicy) run(op string, fn func() error) error {
	var err error
	for attempts := writeRetries; attempts > 0; attempts-- {
		if err = fn(); err == nil {
			return nil
		}
		if rp.onRetry != nil {
			rp.onRetry(op)
		}
		rp.logger.LogAttrs(context.Background(), slog.LevelDebug, "register write failed",
			slog.String("op", op),
			slog.Int("attempts_left", attempts-1),
			slog.Any("error", err))
	}
	return ioError(op, err)
}
