package apds9960

import (
	"errors"
	"fmt"
	"log/slog"
)

// GestureConfig is the gesture-engine setup written by EnableGesture.
type GestureConfig struct {
	// ProximityEnter and ProximityExit are the GPENTH/GEXTH proximity levels
	// that start and stop the gesture state machine.
	ProximityEnter uint8
	ProximityExit  uint8

	// FIFOThreshold is the number of datasets (1, 4, 8 or 16) that raise GINT.
	FIFOThreshold int
	// Gain is the gesture gain multiplier (1, 2, 4 or 8).
	Gain int
	// LEDDrive is the LED current in mA (100, 50, 25 or 12).
	LEDDrive int
	// PulseLength is the pulse width in microseconds (4, 8, 16 or 32).
	PulseLength int
	// PulseCount is the number of pulses per cycle (1-64).
	PulseCount int
}

// DefaultGestureConfig mirrors the datasheet recommendations.
func DefaultGestureConfig() GestureConfig {
	return GestureConfig{
		ProximityEnter: 40,
		ProximityExit:  30,
		FIFOThreshold:  4,
		Gain:           4,
		LEDDrive:       100,
		PulseLength:    16,
		PulseCount:     10,
	}
}

var (
	fifoThresholdBits = map[int]byte{1: 0, 4: 1, 8: 2, 16: 3}
	gainBits          = map[int]byte{1: 0, 2: 1, 4: 2, 8: 3}
	ledDriveBits      = map[int]byte{100: 0, 50: 1, 25: 2, 12: 3}
	pulseLengthBits   = map[int]byte{4: 0, 8: 1, 16: 2, 32: 3}
)

// registerWrite is one step of an initialisation sequence.
type registerWrite struct {
	reg   byte
	value byte
}

func (c GestureConfig) sequence() ([]registerWrite, error) {
	fifoTh, ok := fifoThresholdBits[c.FIFOThreshold]
	if !ok {
		return nil, usageError("gesture config", "fifo threshold %d not in {1,4,8,16}", c.FIFOThreshold)
	}
	gain, ok := gainBits[c.Gain]
	if !ok {
		return nil, usageError("gesture config", "gain %d not in {1,2,4,8}", c.Gain)
	}
	drive, ok := ledDriveBits[c.LEDDrive]
	if !ok {
		return nil, usageError("gesture config", "led drive %d not in {100,50,25,12}", c.LEDDrive)
	}
	plen, ok := pulseLengthBits[c.PulseLength]
	if !ok {
		return nil, usageError("gesture config", "pulse length %d not in {4,8,16,32}", c.PulseLength)
	}
	if c.PulseCount < 1 || c.PulseCount > 64 {
		return nil, usageError("gesture config", "pulse count %d not in 1..64", c.PulseCount)
	}

	return []registerWrite{
		{RegEnable, 0},
		{RegGPEnTh, c.ProximityEnter},
		{RegGExTh, c.ProximityExit},
		{RegGConf1, fifoTh << 6},
		{RegGConf2, gain<<5 | drive<<3},
		{RegGPulse, plen<<6 | byte(c.PulseCount-1)},
		{RegGConf3, 0},
		{RegGConf4, gconf4GIEN},
		{RegEnable, enablePON | enablePEN | enableWEN | enableGEN},
	}, nil
}

// Validate reports whether every field has a register encoding.
func (c GestureConfig) Validate() error {
	_, err := c.sequence()
	return err
}

// Device is one sensor session. It owns the decoder state and the callback.
//
// A Device must be driven from a single goroutine: HandleInterrupt must not
// run concurrently with itself or with DecodeGesture. The only re-entrancy
// allowed is a callback calling back into the Device synchronously.
type Device struct {
	regs    Registers
	state   *DecoderState
	cb      Callback
	logger  *slog.Logger
	onRetry func(op string)
	onFIFO  func(samples int)
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger used for retries and dropped batches.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithCallback registers the event callback.
func WithCallback(cb Callback) Option {
	return func(d *Device) { d.cb = cb }
}

// WithRetryObserver registers fn to be called after every failed write attempt.
func WithRetryObserver(fn func(op string)) Option {
	return func(d *Device) { d.onRetry = fn }
}

// WithFIFOObserver registers fn to be called with the size of every batch
// read by a FIFOHandler.
func WithFIFOObserver(fn func(samples int)) Option {
	return func(d *Device) { d.onFIFO = fn }
}

// WithDecoderState replaces the default decoder state.
func WithDecoderState(s *DecoderState) Option {
	return func(d *Device) {
		if s != nil {
			d.state = s
		}
	}
}

// NewDevice returns a session on regs with a default decoder state.
func NewDevice(regs Registers, opts ...Option) *Device {
	d := &Device{
		regs:   regs,
		state:  NewDecoderState(),
		logger: discardLogger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the decoder state owned by d.
func (d *Device) State() *DecoderState { return d.state }

// SetCallback replaces the event callback. nil disables reporting.
func (d *Device) SetCallback(cb Callback) { d.cb = cb }

// ErrUnknownChip is returned by ReadChipID for an unexpected ID register value.
var ErrUnknownChip = errors.New("apds9960: unknown chip id")

// ReadChipID reads the ID register and returns the part name.
func (d *Device) ReadChipID() (byte, string, error) {
	var id [1]byte
	if err := d.regs.ReadRegister(RegID, id[:]); err != nil {
		return 0, "", ioError("read chip id", err)
	}
	name, ok := chipIDs[id[0]]
	if !ok {
		return id[0], "", fmt.Errorf("%w: 0x%02X", ErrUnknownChip, id[0])
	}
	return id[0], name, nil
}

// EnableGesture powers the sensor up with the gesture engine and its
// interrupt enabled. The decoder state is reset.
func (d *Device) EnableGesture(cfg GestureConfig) error {
	seq, err := cfg.sequence()
	if err != nil {
		return err
	}
	for _, w := range seq {
		if err := d.regs.WriteRegister(w.reg, []byte{w.value}); err != nil {
			return ioError(fmt.Sprintf("enable gesture: write 0x%02X", w.reg), err)
		}
	}
	d.state.Reset()
	d.state.TakePending()
	return nil
}

// Disable powers the sensor down.
func (d *Device) Disable() error {
	if err := d.regs.WriteRegister(RegEnable, []byte{0}); err != nil {
		return ioError("disable", err)
	}
	return nil
}

// InterruptAsserted reads STATUS and reports whether any condition that
// drives the INT line is latched. It does not clear anything.
func (d *Device) InterruptAsserted() (bool, error) {
	var status [1]byte
	if err := d.regs.ReadRegister(RegStatus, status[:]); err != nil {
		return false, ioError("read status", err)
	}
	return status[0]&statusIntMask != 0, nil
}

// ReadGestureFIFO reads up to requested samples; see ReadFIFO.
func (d *Device) ReadGestureFIFO(requested int) ([]Sample, error) {
	return ReadFIFO(d.regs, requested)
}

// DecodeGesture runs the decoder over batch on the session state.
func (d *Device) DecodeGesture(batch []Sample) error {
	return d.state.Decode(batch)
}

// HandleInterrupt services one interrupt assertion; see ServiceInterrupt.
func (d *Device) HandleInterrupt() error {
	return serviceInterrupt(d.state, d.regs, d.cb, retryPolicy{logger: d.logger, onRetry: d.onRetry})
}

// FIFOHandler returns a callback that, on InterruptFIFOValid, reads up to
// requested samples and decodes them before forwarding the tag to next.
// Batches too short to decode are dropped. Read failures are passed to
// onErr when it is non-nil.
func (d *Device) FIFOHandler(requested int, next Callback, onErr func(error)) Callback {
	return func(tag Interrupt) {
		if tag == InterruptFIFOValid {
			d.drainFIFO(requested, onErr)
		}
		if next != nil {
			next(tag)
		}
	}
}

func (d *Device) drainFIFO(requested int, onErr func(error)) {
	batch, err := d.ReadGestureFIFO(requested)
	if err != nil {
		if onErr != nil {
			onErr(err)
		}
		return
	}
	if d.onFIFO != nil {
		d.onFIFO(len(batch))
	}
	if err := d.DecodeGesture(batch); err != nil {
		d.logger.Debug("gesture batch dropped", "samples", len(batch), "error", err)
		if onErr != nil {
			onErr(err)
		}
	}
}
