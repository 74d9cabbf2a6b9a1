package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gesturebrainz/internal/apds9960"
	"gesturebrainz/internal/metrics"
)

// ============================================================================
// Daemon loop
// ============================================================================
//
// The daemon goroutine is the only owner of the sensor session. Interrupt
// edges and client commands are serialised through one select loop, so the
// dispatch cycle and the decoder never run concurrently with themselves.
//
// Gestures and raw status tags leave the loop as Broadcasts; sends are
// non-blocking so a stalled WS fan-out cannot hold the INT line low.
//
// ============================================================================

// DecoderSnapshot is a copy of the decoder state plus loop counters.
type DecoderSnapshot struct {
	Sensor string `json:"sensor"`

	Threshold    uint8 `json:"threshold"`
	Sensitivity1 int   `json:"sensitivity_1"`
	Sensitivity2 int   `json:"sensitivity_2"`

	UDDelta   int `json:"ud_delta"`
	LRDelta   int `json:"lr_delta"`
	UDCount   int `json:"ud_count"`
	LRCount   int `json:"lr_count"`
	NearCount int `json:"near_count"`
	FarCount  int `json:"far_count"`

	Cycles        uint64    `json:"cycles"`
	CycleErrors   uint64    `json:"cycle_errors"`
	Gestures      uint64    `json:"gestures"`
	LastGesture   string    `json:"last_gesture,omitempty"`
	LastGestureAt time.Time `json:"last_gesture_at,omitzero"`
}

// daemonConfig is the subset of Config the loop needs.
type daemonConfig struct {
	Sensor      string
	FIFORequest int
	// Probe makes every edge read STATUS first and skip the cycle when no
	// interrupt is latched. Used with the poll source.
	Probe bool
}

type daemon struct {
	dev        *apds9960.Device
	cfg        daemonConfig
	broadcasts chan<- Broadcast
	logger     *slog.Logger

	cycles        uint64
	cycleErrors   uint64
	gestures      uint64
	lastGesture   apds9960.Interrupt
	lastGestureAt time.Time
}

// newDaemon builds the sensor session on regs. state may be nil for defaults.
func newDaemon(regs apds9960.Registers, state *apds9960.DecoderState, cfg daemonConfig, broadcasts chan<- Broadcast, logger *slog.Logger) *daemon {
	d := &daemon{
		cfg:        cfg,
		broadcasts: broadcasts,
		logger:     logger,
	}
	d.dev = apds9960.NewDevice(regs,
		apds9960.WithLogger(logger.With("sensor", cfg.Sensor)),
		apds9960.WithDecoderState(state),
		apds9960.WithRetryObserver(func(op string) {
			metrics.WriteRetries.WithLabelValues(cfg.Sensor, op).Inc()
		}),
		apds9960.WithFIFOObserver(func(samples int) {
			metrics.FIFOSamples.WithLabelValues(cfg.Sensor).Observe(float64(samples))
		}),
	)
	d.dev.SetCallback(d.dev.FIFOHandler(cfg.FIFORequest, d.onTag, d.onFIFOError))
	return d
}

// Device returns the session driven by the loop. Only use it before run
// starts or after it returns.
func (d *daemon) Device() *apds9960.Device { return d.dev }

// run services edges and commands until ctx is canceled or edges is closed.
func (d *daemon) run(ctx context.Context, edges <-chan struct{}, commands <-chan Command) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping (context canceled)")
			return

		case _, ok := <-edges:
			if !ok {
				d.logger.Info("daemon stopping (edge source closed)")
				return
			}
			d.onEdge()

		case cmd := <-commands:
			d.handleCommand(cmd)
		}
	}
}

func (d *daemon) onEdge() {
	if d.cfg.Probe {
		asserted, err := d.dev.InterruptAsserted()
		if err != nil {
			d.cycleFailed(err)
			return
		}
		if !asserted {
			return
		}
	}
	d.service()
}

// service runs one dispatch cycle.
func (d *daemon) service() {
	start := time.Now()
	d.cycles++
	metrics.InterruptCycles.WithLabelValues(d.cfg.Sensor).Inc()

	err := d.dev.HandleInterrupt()
	metrics.InterruptCycleLatency.WithLabelValues(d.cfg.Sensor).Observe(time.Since(start).Seconds())
	if err != nil {
		d.cycleFailed(err)
	}
}

func (d *daemon) cycleFailed(err error) {
	d.cycleErrors++
	metrics.InterruptCycleErrors.WithLabelValues(d.cfg.Sensor).Inc()
	d.logger.Warn("interrupt cycle failed", "sensor", d.cfg.Sensor, "error", err)
	d.emit(BroadcastCycleError{Error: err.Error(), At: time.Now().UTC()})
}

// onTag is the callback behind the FIFO handler. It runs inside a cycle.
func (d *daemon) onTag(tag apds9960.Interrupt) {
	now := time.Now().UTC()
	if tag.IsGesture() {
		d.gestures++
		d.lastGesture = tag
		d.lastGestureAt = now
		metrics.Gestures.WithLabelValues(d.cfg.Sensor, tag.String()).Inc()
		d.logger.Info("gesture", "sensor", d.cfg.Sensor, "direction", tag.String())
		d.emit(BroadcastGesture{Direction: tag.String(), At: now})
		return
	}
	metrics.InterruptTags.WithLabelValues(d.cfg.Sensor, tag.String()).Inc()
	d.logger.Debug("interrupt", "sensor", d.cfg.Sensor, "tag", tag.String())
	d.emit(BroadcastInterrupt{Tag: tag.String(), At: now})
}

func (d *daemon) onFIFOError(err error) {
	if errors.Is(err, apds9960.ErrUsage) {
		metrics.DecoderUsageErrors.WithLabelValues(d.cfg.Sensor).Inc()
		return
	}
	d.logger.Warn("gesture fifo read failed", "sensor", d.cfg.Sensor, "error", err)
}

func (d *daemon) handleCommand(cmd Command) {
	state := d.dev.State()

	switch c := cmd.(type) {
	case SetDecoder:
		if err := c.Validate(); err != nil {
			d.logger.Warn("ignoring invalid command", "error", err)
			return
		}
		if c.Threshold != nil {
			state.SetThreshold(uint8(*c.Threshold))
		}
		if c.Sensitivity1 != nil {
			state.SetSensitivity1(*c.Sensitivity1)
		}
		if c.Sensitivity2 != nil {
			state.SetSensitivity2(*c.Sensitivity2)
		}
		snap := d.snapshot()
		d.logger.Info("decoder updated",
			"threshold", snap.Threshold,
			"sensitivity_1", snap.Sensitivity1,
			"sensitivity_2", snap.Sensitivity2)
		d.emit(BroadcastDecoderChanged{Snapshot: snap, At: time.Now().UTC()})

	case ResetDecoder:
		state.Reset()
		state.TakePending()
		d.logger.Info("decoder reset")
		d.emit(BroadcastDecoderChanged{Snapshot: d.snapshot(), At: time.Now().UTC()})

	case ServiceNow:
		d.service()

	case RequestSnapshot:
		if c.Reply == nil {
			return
		}
		select {
		case c.Reply <- d.snapshot():
		default:
			d.logger.Warn("snapshot reply dropped (receiver not ready)")
		}

	default:
		d.logger.Warn("unknown command", "type", cmd)
	}
}

func (d *daemon) snapshot() DecoderSnapshot {
	s := d.dev.State().Snapshot()
	snap := DecoderSnapshot{
		Sensor:       d.cfg.Sensor,
		Threshold:    s.Threshold,
		Sensitivity1: s.Sensitivity1,
		Sensitivity2: s.Sensitivity2,
		UDDelta:      s.UDDelta,
		LRDelta:      s.LRDelta,
		UDCount:      s.UDCount,
		LRCount:      s.LRCount,
		NearCount:    s.NearCount,
		FarCount:     s.FarCount,
		Cycles:       d.cycles,
		CycleErrors:  d.cycleErrors,
		Gestures:     d.gestures,
	}
	if d.gestures > 0 {
		snap.LastGesture = d.lastGesture.String()
		snap.LastGestureAt = d.lastGestureAt
	}
	return snap
}

// emit performs a non-blocking send on the broadcast channel.
func (d *daemon) emit(b Broadcast) {
	if d.broadcasts == nil {
		return
	}
	select {
	case d.broadcasts <- b:
	default:
		d.logger.Debug("broadcast dropped (queue full)", "broadcast", b)
	}
}
