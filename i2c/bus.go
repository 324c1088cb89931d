package i2c

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/afe"
)

// Bus speeds supported by the front end controllers.
const (
	StandardMode = 100 * physic.KiloHertz
	FastMode     = 400 * physic.KiloHertz
	FastModePlus = physic.MegaHertz
)

var _ afe.I2CBus = &GenericBus{}

// GenericBus is a host I2C controller opened through periph.io.
type GenericBus struct {
	*TxBus
	bus i2c.BusCloser
}

type GenericBusOpts struct {
	Speed physic.Frequency
}

type GenericBusOpt func(*GenericBusOpts)

func WithSpeed(speed physic.Frequency) GenericBusOpt {
	return func(o *GenericBusOpts) {
		o.Speed = speed
	}
}

func NewGenericBus(dev string, opts ...GenericBusOpt) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	b, err := WrapBus(bus, opts...)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return b, nil
}

// WrapBus builds a GenericBus around an already opened periph bus.
func WrapBus(bus i2c.BusCloser, opts ...GenericBusOpt) (*GenericBus, error) {
	var config GenericBusOpts
	for _, opt := range opts {
		opt(&config)
	}
	b := &GenericBus{TxBus: NewTxBus(bus), bus: bus}
	if config.Speed != 0 {
		if err := b.SetSpeed(config.Speed); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *GenericBus) SetSpeed(speed physic.Frequency) error {
	if err := b.bus.SetSpeed(speed); err != nil {
		return fmt.Errorf("could not set i2c bus speed to %s: %w", speed, err)
	}
	return nil
}

func (b *GenericBus) String() string {
	return b.bus.String()
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
