package apds9960

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_ReadChipID(t *testing.T) {
	regs := newFakeRegisters()
	regs.set(RegID, 0xAB)
	dev := NewDevice(regs)

	id, name, err := dev.ReadChipID()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), id)
	assert.Equal(t, "APDS-9960", name)

	regs.set(RegID, 0x12)
	_, _, err = dev.ReadChipID()
	assert.ErrorIs(t, err, ErrUnknownChip)
}

func TestDevice_EnableGestureSequence(t *testing.T) {
	regs := newFakeRegisters()
	dev := NewDevice(regs)
	dev.State().UDDelta = 40
	dev.State().pending = GestureUp

	require.NoError(t, dev.EnableGesture(DefaultGestureConfig()))

	require.NotEmpty(t, regs.writes)
	assert.Equal(t, fakeWrite{reg: RegEnable, data: []byte{0}}, regs.writes[0])
	last := regs.writes[len(regs.writes)-1]
	assert.Equal(t, RegEnable, last.reg)
	assert.Equal(t, []byte{enablePON | enablePEN | enableWEN | enableGEN}, last.data)

	// gain 4x -> 2, 100 mA -> 0
	assert.Equal(t, []byte{2 << 5}, regs.regs[RegGConf2])
	// 16 us -> 2, 10 pulses -> 9
	assert.Equal(t, []byte{2<<6 | 9}, regs.regs[RegGPulse])
	assert.Equal(t, []byte{1 << 6}, regs.regs[RegGConf1])
	assert.Equal(t, []byte{gconf4GIEN}, regs.regs[RegGConf4])

	assert.Zero(t, dev.State().UDDelta)
	assert.True(t, dev.State().Pending().Empty())
}

func TestDevice_EnableGestureRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GestureConfig)
	}{
		{"fifo threshold", func(c *GestureConfig) { c.FIFOThreshold = 3 }},
		{"gain", func(c *GestureConfig) { c.Gain = 5 }},
		{"led drive", func(c *GestureConfig) { c.LEDDrive = 75 }},
		{"pulse length", func(c *GestureConfig) { c.PulseLength = 10 }},
		{"pulse count low", func(c *GestureConfig) { c.PulseCount = 0 }},
		{"pulse count high", func(c *GestureConfig) { c.PulseCount = 65 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regs := newFakeRegisters()
			cfg := DefaultGestureConfig()
			tt.mutate(&cfg)

			err := NewDevice(regs).EnableGesture(cfg)
			assert.ErrorIs(t, err, ErrUsage)
			assert.Empty(t, regs.writes)
		})
	}
}

func TestDevice_EnableGestureWriteFailure(t *testing.T) {
	regs := newFakeRegisters()
	regs.failWrites[RegGPEnTh] = 1

	err := NewDevice(regs).EnableGesture(DefaultGestureConfig())
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, errBus)
}

func TestDevice_Disable(t *testing.T) {
	regs := newFakeRegisters()
	require.NoError(t, NewDevice(regs).Disable())
	assert.Equal(t, []byte{0}, regs.regs[RegEnable])
}

func TestInterrupt_String(t *testing.T) {
	assert.Equal(t, "fifo_valid", InterruptFIFOValid.String())
	assert.Equal(t, "left", InterruptGestureLeft.String())
	assert.Equal(t, "unknown", Interrupt(99).String())
	assert.True(t, InterruptGestureFar.IsGesture())
	assert.False(t, InterruptFIFOValid.IsGesture())
}

func TestDevice_InterruptAsserted(t *testing.T) {
	regs := newFakeRegisters()
	dev := NewDevice(regs)

	regs.set(RegStatus, statusPValid|statusAValid)
	asserted, err := dev.InterruptAsserted()
	require.NoError(t, err)
	assert.False(t, asserted)

	regs.set(RegStatus, statusGInt)
	asserted, err = dev.InterruptAsserted()
	require.NoError(t, err)
	assert.True(t, asserted)
	assert.Empty(t, regs.writes)

	regs.failReads[RegStatus] = 1
	_, err = dev.InterruptAsserted()
	assert.ErrorIs(t, err, ErrIO)
}
