package dac

import (
	"context"

	"periph.io/x/conn/v3/physic"
)

// Output is a named analog output wired to one channel of a DAC.
type Output struct {
	Name   string
	DAC    *MCP4728
	Config ChannelConfig
	// Supply is the VDD of the DAC, used when Config.Vref is VrefVDD.
	Supply physic.ElectricPotential
}

func (o *Output) Set(ctx context.Context, counts uint16) error {
	return o.DAC.WriteChannel(ctx, o.Config, counts)
}

// SetVoltage writes the counts closest to v that the channel can produce.
func (o *Output) SetVoltage(ctx context.Context, v physic.ElectricPotential) error {
	return o.Set(ctx, CountsFor(v, o.Config, o.Supply))
}

func (o *Output) Counts() uint16 {
	return o.DAC.Last(o.Config.Channel)
}

func (o *Output) Voltage() physic.ElectricPotential {
	return physic.ElectricPotential(int64(o.Counts()) * int64(o.Config.FullScale(o.Supply)) / (MaxCounts + 1))
}
