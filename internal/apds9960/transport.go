package apds9960

import (
	"fmt"
	"io"
	"log/slog"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var discardLogger = slog.New(slog.DiscardHandler)

// Registers is the register transport the core consumes. The transfer
// length is len(buf).
type Registers interface {
	ReadRegister(reg byte, buf []byte) error
	WriteRegister(reg byte, buf []byte) error
}

// I2CRegisters addresses the sensor registers over a periph connection,
// normally an *i2c.Dev.
type I2CRegisters struct {
	c conn.Conn
}

var _ Registers = (*I2CRegisters)(nil)

// NewI2CRegisters wraps c.
func NewI2CRegisters(c conn.Conn) *I2CRegisters {
	return &I2CRegisters{c: c}
}

// ReadRegister writes the register address then reads len(buf) bytes.
// The sensor auto-increments the address on block reads.
func (r *I2CRegisters) ReadRegister(reg byte, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := r.c.Tx([]byte{reg}, buf); err != nil {
		return ioError(fmt.Sprintf("read 0x%02X", reg), err)
	}
	return nil
}

// WriteRegister writes buf starting at reg in a single transaction.
func (r *I2CRegisters) WriteRegister(reg byte, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, reg)
	w = append(w, buf...)
	if err := r.c.Tx(w, nil); err != nil {
		return ioError(fmt.Sprintf("write 0x%02X", reg), err)
	}
	return nil
}

// OpenI2C initialises the periph host drivers and opens the sensor on the
// named bus ("" selects the first available bus). Close the returned closer
// when the session ends.
func OpenI2C(busName string, addr uint16) (*I2CRegisters, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	if addr == 0 {
		addr = DefaultAddress
	}
	dev := &i2c.Dev{Addr: addr, Bus: bus}
	return NewI2CRegisters(dev), bus, nil
}
