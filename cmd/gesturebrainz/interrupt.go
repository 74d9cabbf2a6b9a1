package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// edgeSource reports INT line assertions on edges until ctx is done.
//
// edges is buffered with depth edgeQueueDepth; sources never block on it.
// A dropped send is harmless because one servicing cycle handles every
// latched status bit.
type edgeSource interface {
	Run(ctx context.Context, edges chan<- struct{}) error
}

// notifyEdge performs a non-blocking send on edges.
func notifyEdge(edges chan<- struct{}) {
	select {
	case edges <- struct{}{}:
	default:
	}
}

// newEdgeSource builds the source selected by cfg.Interrupt.Mode.
// host.Init must already have run for gpio mode.
func newEdgeSource(cfg *Config, logger *slog.Logger) (edgeSource, error) {
	recheck := defaultEdgeRecheckMS * time.Millisecond
	switch cfg.Interrupt.Mode {
	case interruptModeGPIO:
		pin := gpioreg.ByName(cfg.Interrupt.GPIOPin)
		if pin == nil {
			return nil, fmt.Errorf("gpio pin %q not found", cfg.Interrupt.GPIOPin)
		}
		return &gpioWatcher{pin: pin, recheck: recheck, logger: logger}, nil
	case interruptModeSysfs:
		return &sysfsWatcher{path: ExpandPath(cfg.Interrupt.SysfsValuePath), recheck: recheck, logger: logger}, nil
	case interruptModePoll:
		return &pollWatcher{interval: cfg.PollInterval()}, nil
	default:
		return nil, fmt.Errorf("unknown interrupt mode %q", cfg.Interrupt.Mode)
	}
}

// gpioWatcher waits for falling edges on the active-low INT pin.
//
// The line stays low until the latches are cleared, so a low level seen on
// a recheck timeout is reported as well. This recovers from edges lost
// while a cycle was running.
type gpioWatcher struct {
	pin     gpio.PinIn
	recheck time.Duration
	logger  *slog.Logger
}

func (w *gpioWatcher) Run(ctx context.Context, edges chan<- struct{}) error {
	if err := w.pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure %s: %w", w.pin.Name(), err)
	}
	defer func() {
		if err := w.pin.Halt(); err != nil {
			w.logger.Warn("gpio halt failed", "pin", w.pin.Name(), "error", err)
		}
	}()
	w.logger.Info("watching interrupt line", "mode", interruptModeGPIO, "pin", w.pin.Name())

	for {
		if ctx.Err() != nil {
			return nil
		}
		edge := w.pin.WaitForEdge(w.recheck)
		if edge || w.pin.Read() == gpio.Low {
			notifyEdge(edges)
		}
	}
}

// pollWatcher ticks at a fixed interval. The daemon probes STATUS on each
// tick and only services the sensor when an interrupt is latched.
type pollWatcher struct {
	interval time.Duration
}

func (w *pollWatcher) Run(ctx context.Context, edges chan<- struct{}) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			notifyEdge(edges)
		}
	}
}
