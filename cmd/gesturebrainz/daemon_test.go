package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gesturebrainz/internal/apds9960"
)

var errNoAck = errors.New("i2c: no ack")

// memRegisters is a register file backed by a map. Reads of an unset
// register return zeros.
type memRegisters struct {
	mu       sync.Mutex
	regs     map[byte][]byte
	failRead map[byte]bool
	writes   []byte
}

func newMemRegisters() *memRegisters {
	return &memRegisters{regs: make(map[byte][]byte), failRead: make(map[byte]bool)}
}

func (m *memRegisters) set(reg byte, data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = data
}

func (m *memRegisters) ReadRegister(reg byte, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead[reg] {
		return errNoAck
	}
	clear(buf)
	copy(buf, m.regs[reg])
	return nil
}

func (m *memRegisters) WriteRegister(reg byte, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, reg)
	m.regs[reg] = append([]byte(nil), buf...)
	return nil
}

// loadSwipe latches a gesture interrupt with a four-sample batch that
// decodes to "right".
func loadSwipe(m *memRegisters) {
	m.set(apds9960.RegStatus, 1<<2)
	m.set(apds9960.RegGStatus, 1<<0)
	m.set(apds9960.RegGFLvl, 4)
	m.set(apds9960.RegGFIFOU,
		60, 11, 32, 30,
		1, 1, 1, 1,
		1, 1, 1, 1,
		11, 60, 30, 32,
	)
}

func newTestDaemon(t *testing.T, regs apds9960.Registers, probe bool) (*daemon, chan Broadcast) {
	t.Helper()
	out := make(chan Broadcast, 32)
	d := newDaemon(regs, nil, daemonConfig{
		Sensor:      "test",
		FIFORequest: 32,
		Probe:       probe,
	}, out, slog.New(slog.DiscardHandler))
	return d, out
}

func drain(ch chan Broadcast) []Broadcast {
	var out []Broadcast
	for {
		select {
		case b := <-ch:
			out = append(out, b)
		default:
			return out
		}
	}
}

func TestDaemon_EdgeDecodesAndBroadcastsGesture(t *testing.T) {
	regs := newMemRegisters()
	loadSwipe(regs)
	d, out := newTestDaemon(t, regs, false)

	d.onEdge()

	got := drain(out)
	require.Len(t, got, 3)
	assert.Equal(t, "gesture", got[0].(BroadcastInterrupt).Tag)
	assert.Equal(t, "fifo_valid", got[1].(BroadcastInterrupt).Tag)
	assert.Equal(t, "right", got[2].(BroadcastGesture).Direction)

	snap := d.snapshot()
	assert.Equal(t, uint64(1), snap.Cycles)
	assert.Equal(t, uint64(1), snap.Gestures)
	assert.Equal(t, "right", snap.LastGesture)
	assert.False(t, snap.LastGestureAt.IsZero())
	// Reported gestures restart recognition.
	assert.Zero(t, snap.UDDelta)
	assert.Zero(t, snap.UDCount)
}

func TestDaemon_CycleErrorIsBroadcastAndCounted(t *testing.T) {
	regs := newMemRegisters()
	regs.failRead[apds9960.RegStatus] = true
	d, out := newTestDaemon(t, regs, false)

	d.onEdge()

	got := drain(out)
	require.Len(t, got, 1)
	ce, ok := got[0].(BroadcastCycleError)
	require.True(t, ok)
	assert.Contains(t, ce.Error, "no ack")

	snap := d.snapshot()
	assert.Equal(t, uint64(1), snap.Cycles)
	assert.Equal(t, uint64(1), snap.CycleErrors)
	assert.Empty(t, regs.writes, "a failed status read must not clear anything")
}

func TestDaemon_ProbeSkipsIdleSensor(t *testing.T) {
	regs := newMemRegisters()
	regs.set(apds9960.RegStatus, 1<<1) // PVALID only
	d, out := newTestDaemon(t, regs, true)

	d.onEdge()
	assert.Empty(t, drain(out))
	assert.Zero(t, d.snapshot().Cycles)
	assert.Empty(t, regs.writes)

	loadSwipe(regs)
	d.onEdge()
	assert.Equal(t, uint64(1), d.snapshot().Cycles)
	assert.Len(t, drain(out), 3)
}

func TestDaemon_ShortBatchIsDroppedWithoutCycleError(t *testing.T) {
	regs := newMemRegisters()
	loadSwipe(regs)
	regs.set(apds9960.RegGFLvl, 2)
	d, out := newTestDaemon(t, regs, false)

	d.onEdge()

	for _, b := range drain(out) {
		_, isGesture := b.(BroadcastGesture)
		assert.False(t, isGesture)
		_, isErr := b.(BroadcastCycleError)
		assert.False(t, isErr)
	}
	assert.Zero(t, d.snapshot().CycleErrors)
}

func TestDaemon_SetDecoderAndReset(t *testing.T) {
	d, out := newTestDaemon(t, newMemRegisters(), false)

	th, s1 := 25, 70
	d.handleCommand(SetDecoder{Threshold: &th, Sensitivity1: &s1})

	snap := d.snapshot()
	assert.Equal(t, uint8(25), snap.Threshold)
	assert.Equal(t, 70, snap.Sensitivity1)
	assert.Equal(t, apds9960.DefaultSensitivity2, snap.Sensitivity2)

	got := drain(out)
	require.Len(t, got, 1)
	changed, ok := got[0].(BroadcastDecoderChanged)
	require.True(t, ok)
	assert.Equal(t, uint8(25), changed.Snapshot.Threshold)

	bad := 300
	d.handleCommand(SetDecoder{Threshold: &bad})
	assert.Equal(t, uint8(25), d.snapshot().Threshold)
	assert.Empty(t, drain(out))

	d.Device().State().UDDelta = 99
	d.handleCommand(ResetDecoder{})
	assert.Zero(t, d.snapshot().UDDelta)
	assert.Equal(t, uint8(25), d.snapshot().Threshold, "reset keeps tuning")
	assert.Len(t, drain(out), 1)
}

func TestDaemon_RunServesCommandsAndEdges(t *testing.T) {
	regs := newMemRegisters()
	d, out := newTestDaemon(t, regs, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	edges := make(chan struct{}, 1)
	commands := make(chan Command, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.run(ctx, edges, commands)
	}()

	loadSwipe(regs)
	edges <- struct{}{}
	// Edges and commands race in the select; let the edge go first.
	waitUntil(t, 500*time.Millisecond, func() bool { return len(edges) == 0 }, "edge not consumed")
	commands <- ServiceNow{}

	snap, err := requestSnapshot(ctx, commands)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Cycles)
	assert.Equal(t, "test", snap.Sensor)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.NotEmpty(t, drain(out))
}

func TestDaemon_RunStopsWhenEdgesClosed(t *testing.T) {
	d, _ := newTestDaemon(t, newMemRegisters(), false)
	edges := make(chan struct{})
	close(edges)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.run(context.Background(), edges, nil)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_EmitDropsWhenQueueFull(t *testing.T) {
	out := make(chan Broadcast, 1)
	d := newDaemon(newMemRegisters(), nil, daemonConfig{Sensor: "test", FIFORequest: 32}, out, slog.New(slog.DiscardHandler))

	d.emit(BroadcastGesture{Direction: "up"})
	d.emit(BroadcastGesture{Direction: "down"})

	require.Len(t, out, 1)
	assert.Equal(t, "up", (<-out).(BroadcastGesture).Direction)
}
