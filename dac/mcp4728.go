// Package dac drives the Microchip MCP4728 quad 12-bit DAC.
package dac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/afectx"
)

const (
	// BaseAddress is the device code; the low three bits are the sub-address.
	BaseAddress = 0x60
	// MaxCounts is the largest 12-bit input register value.
	MaxCounts = 4095

	cmdMultiWrite = 0b01000
	frameSize     = 3

	// InternalReference is the internal band gap reference voltage.
	InternalReference = 2048 * physic.MilliVolt
)

var ErrInvalidChannel = errors.New("dac: invalid channel")

type Channel uint8

const (
	ChannelA Channel = iota
	ChannelB
	ChannelC
	ChannelD
	NotAChannel
)

func (c Channel) String() string {
	if c >= NotAChannel {
		return "none"
	}
	return string(rune('A' + c))
}

// ParseChannel accepts "A" through "D", case insensitive.
func ParseChannel(s string) (Channel, error) {
	if len(s) == 1 {
		ch := s[0] | 0x20
		if ch >= 'a' && ch <= 'd' {
			return Channel(ch - 'a'), nil
		}
	}
	return NotAChannel, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
}

// PowerDown selects the output pull-down used while the channel is off.
type PowerDown uint8

const (
	PowerNormal PowerDown = iota
	PowerDown1K
	PowerDown100K
	PowerDown500K
)

type Gain uint8

const (
	GainX1 Gain = iota
	GainX2
)

type Vref uint8

const (
	VrefVDD Vref = iota
	VrefInternal
)

// ChannelConfig is the per-channel setting sent with every input register
// write.
type ChannelConfig struct {
	Channel   Channel
	PowerDown PowerDown
	Gain      Gain
	Vref      Vref
}

// control returns the VREF PD1 PD0 GAIN nibble in the high half of a byte.
func (c ChannelConfig) control() byte {
	return byte(min(c.Vref, VrefInternal))<<7 |
		byte(min(c.PowerDown, PowerDown500K))<<5 |
		byte(min(c.Gain, GainX2))<<4
}

// FullScale is the output voltage at MaxCounts+1 for cfg. vdd is only used
// when the channel is referenced to the supply.
func (c ChannelConfig) FullScale(vdd physic.ElectricPotential) physic.ElectricPotential {
	if c.Vref == VrefVDD {
		return vdd
	}
	if c.Gain == GainX2 {
		return 2 * InternalReference
	}
	return InternalReference
}

// Clamp limits data to the 12-bit input register range.
func Clamp(data uint16) uint16 {
	return min(data, MaxCounts)
}

// Frame builds a multi-write frame for one channel. data is clamped.
func Frame(cfg ChannelConfig, data uint16, updateImmediately bool) ([frameSize]byte, error) {
	var frame [frameSize]byte
	if cfg.Channel >= NotAChannel {
		return frame, ErrInvalidChannel
	}
	var udac byte
	if !updateImmediately {
		udac = 1
	}
	data = Clamp(data)
	frame[0] = cmdMultiWrite<<3 | byte(cfg.Channel)<<1 | udac
	frame[1] = byte(data>>8)&0x0f | cfg.control()
	frame[2] = byte(data)
	return frame, nil
}

// CountsFor converts a target voltage into input register counts for cfg.
// Out of range voltages clamp to 0 or MaxCounts.
func CountsFor(v physic.ElectricPotential, cfg ChannelConfig, vdd physic.ElectricPotential) uint16 {
	fs := cfg.FullScale(vdd)
	if v <= 0 || fs <= 0 {
		return 0
	}
	counts := int64(v) * (MaxCounts + 1) / int64(fs)
	if counts > MaxCounts {
		return MaxCounts
	}
	return uint16(counts)
}

type Opts struct {
	Name              string
	SubAddress        byte
	UpdateImmediately bool
}

type Opt func(*Opts)

func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

// WithSubAddress sets the A2..A0 address bits programmed into the device.
func WithSubAddress(sub byte) Opt {
	return func(o *Opts) {
		o.SubAddress = sub & 0x07
	}
}

// WithUpdateImmediately controls the UDAC bit. When false the outputs only
// change on an LDAC pulse.
func WithUpdateImmediately(update bool) Opt {
	return func(o *Opts) {
		o.UpdateImmediately = update
	}
}

// Write is one channel update of a multi-write transaction.
type Write struct {
	Config ChannelConfig
	Data   uint16
}

type MCP4728 struct {
	mx        sync.Mutex
	transport *afe.Transport
	name      string
	address   byte
	immediate bool
	last      [NotAChannel]uint16
}

func New(transport *afe.Transport, opts ...Opt) *MCP4728 {
	config := Opts{UpdateImmediately: true}
	for _, opt := range opts {
		opt(&config)
	}
	address := BaseAddress | config.SubAddress
	if config.Name == "" {
		config.Name = fmt.Sprintf("MCP4728@%#02x", address)
	}
	return &MCP4728{
		transport: transport,
		name:      config.Name,
		address:   address,
		immediate: config.UpdateImmediately,
	}
}

func (d *MCP4728) Name() string { return d.name }
func (d *MCP4728) Address() byte { return d.address }

// WriteChannel sets the input register of one channel.
func (d *MCP4728) WriteChannel(ctx context.Context, cfg ChannelConfig, data uint16) error {
	return d.WriteChannels(ctx, Write{Config: cfg, Data: data})
}

// WriteChannels updates several channels in a single bus transaction.
func (d *MCP4728) WriteChannels(ctx context.Context, writes ...Write) error {
	if len(writes) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(writes)*frameSize)
	for _, w := range writes {
		if w.Data > MaxCounts {
			slog.Debug("dac counts clamped", "device", d.name, "channel", w.Config.Channel, "requested", w.Data)
		}
		frame, err := Frame(w.Config, w.Data, d.immediate)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		buf = append(buf, frame[:]...)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	n, err := d.transport.Write(afectx.WithDevice(ctx, d.name), d.address, buf, false)
	if err != nil {
		return fmt.Errorf("%s: could not write input register: %w", d.name, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%s: wrote %d of %d bytes: %w", d.name, n, len(buf), afe.ErrShortTransfer)
	}
	for _, w := range writes {
		d.last[w.Config.Channel] = Clamp(w.Data)
	}
	return nil
}

// Last returns the counts last written to ch.
func (d *MCP4728) Last(ch Channel) uint16 {
	if ch >= NotAChannel {
		return 0
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.last[ch]
}
