package i2c

import (
	"context"
	"fmt"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/afe"
)

var (
	_ afe.I2CBus     = &TxBus{}
	_ afe.Transactor = &TxBus{}
)

// TxBus adapts any bus exposing a single Tx(addr, w, r) primitive. Both
// periph.io buses and TinyGo machine.I2C satisfy drivers.I2C.
type TxBus struct {
	bus drivers.I2C
}

func NewTxBus(bus drivers.I2C) *TxBus {
	return &TxBus{bus: bus}
}

func (b *TxBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *TxBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// Tx writes w and reads r with a repeated start in between.
func (b *TxBus) Tx(ctx context.Context, address byte, w, r []byte) error {
	err := b.bus.Tx(uint16(address), w, r)
	if err != nil {
		return fmt.Errorf("could not transact with i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *TxBus) Release(ctx context.Context) error {
	return nil
}
