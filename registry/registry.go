// Package registry builds the device graph of the front end from a board
// description and hands out drivers by name.
//
// Every bus gets exactly one afe.Transport and every device is bound to
// one bus for its lifetime.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/adc"
	"github.com/mklimuk/afe/dac"
	"github.com/mklimuk/afe/datetime"
	eeprom "github.com/mklimuk/afe/memory/24lc32"
)

var ErrUnknownDevice = errors.New("unknown device")

type Opts struct {
	BuildDate datetime.Packed
	Rand      io.Reader
}

type Opt func(*Opts)

// WithBuildDate sets the date EEPROM signatures are checked against.
func WithBuildDate(date datetime.Packed) Opt {
	return func(o *Opts) {
		o.BuildDate = date
	}
}

// WithRand sets the source used when formatting EEPROMs.
func WithRand(r io.Reader) Opt {
	return func(o *Opts) {
		o.Rand = r
	}
}

type Kind string

const (
	KindADC    Kind = "adc"
	KindDAC    Kind = "dac"
	KindEEPROM Kind = "eeprom"
)

// Device describes one addressable peripheral.
type Device struct {
	Name    string    `yaml:"name"`
	Kind    Kind      `yaml:"kind"`
	Bus     afe.BusID `yaml:"bus"`
	Address byte      `yaml:"address"`
}

type Registry struct {
	cfg      *Config
	buses    map[afe.BusID]*afe.Transport
	backends []afe.I2CBus
	devices  []Device
	adcs     map[string]*adc.Converter
	cached   map[string]*adc.Cached
	dacs     map[string]*dac.MCP4728
	outputs  map[string]*dac.Output
	eeproms  map[string]*eeprom.Store
}

// New validates cfg, opens every bus and builds the drivers. Backends
// opened before a failure are closed again.
func New(ctx context.Context, cfg *Config, opener Opener, opts ...Opt) (*Registry, error) {
	var config Opts
	for _, opt := range opts {
		opt(&config)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	Normalize(cfg)

	r := &Registry{
		cfg:     cfg,
		buses:   make(map[afe.BusID]*afe.Transport),
		adcs:    make(map[string]*adc.Converter),
		cached:  make(map[string]*adc.Cached),
		dacs:    make(map[string]*dac.MCP4728),
		outputs: make(map[string]*dac.Output),
		eeproms: make(map[string]*eeprom.Store),
	}
	for _, b := range cfg.Buses {
		bus, err := opener.Open(ctx, b)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("could not open bus %d (%s): %w", b.ID, b.Backend, err), r.Close())
		}
		r.backends = append(r.backends, bus)
		r.buses[b.ID] = afe.NewTransport(b.ID, bus, afe.WithTimeout(b.Timeout()))
		slog.Debug("bus opened", "bus", b.ID, "backend", b.Backend, "device", b.Device)
	}

	for _, a := range cfg.ADCs {
		capability, _ := adc.CapabilityByName(a.Variant)
		conf := adc.DefaultConfig()
		conf.Rate, _ = dataRate(a.Rate)
		conf.Gain, _ = gain(a.Range)
		conv := adc.New(r.buses[a.Bus],
			adc.WithName(a.Name),
			adc.WithAddress(a.Address),
			adc.WithCapability(capability),
			adc.WithConfig(conf),
		)
		r.adcs[a.Name] = conv
		r.cached[a.Name] = adc.NewCached(conv)
		r.devices = append(r.devices, Device{Name: a.Name, Kind: KindADC, Bus: a.Bus, Address: conv.Address()})
	}

	for _, d := range cfg.DACs {
		dev := dac.New(r.buses[d.Bus],
			dac.WithName(d.Name),
			dac.WithSubAddress(d.SubAddress),
			dac.WithUpdateImmediately(!d.Deferred),
		)
		r.dacs[d.Name] = dev
		r.devices = append(r.devices, Device{Name: d.Name, Kind: KindDAC, Bus: d.Bus, Address: dev.Address()})
		for _, o := range d.Outputs {
			cc, _ := channelConfig(o)
			r.outputs[o.Name] = &dac.Output{
				Name:   o.Name,
				DAC:    dev,
				Config: cc,
				Supply: physic.ElectricPotential(d.Supply * float64(physic.Volt)),
			}
		}
	}

	for _, e := range cfg.EEPROMs {
		eopts := []eeprom.Opt{
			eeprom.WithName(e.Name),
			eeprom.WithChipSelect(e.ChipSelect),
			eeprom.WithSettle(time.Duration(e.SettleMs) * time.Millisecond),
			eeprom.WithBuildDate(config.BuildDate),
		}
		if config.Rand != nil {
			eopts = append(eopts, eeprom.WithRand(config.Rand))
		}
		store := eeprom.New(r.buses[e.Bus], eopts...)
		r.eeproms[e.Name] = store
		r.devices = append(r.devices, Device{Name: e.Name, Kind: KindEEPROM, Bus: e.Bus, Address: store.Address()})
	}
	return r, nil
}

func (r *Registry) Config() *Config {
	return r.cfg
}

func lookup[T any](m map[string]T, kind Kind, name string) (T, error) {
	v, ok := m[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", kind, name, ErrUnknownDevice)
	}
	return v, nil
}

func (r *Registry) Bus(id afe.BusID) (*afe.Transport, error) {
	t, ok := r.buses[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownDevice)
	}
	return t, nil
}

func (r *Registry) ADC(name string) (*adc.Converter, error) {
	return lookup(r.adcs, KindADC, name)
}

// CachedADC returns the caching reader sharing the converter of name.
func (r *Registry) CachedADC(name string) (*adc.Cached, error) {
	return lookup(r.cached, KindADC, name)
}

func (r *Registry) DAC(name string) (*dac.MCP4728, error) {
	return lookup(r.dacs, KindDAC, name)
}

func (r *Registry) Output(name string) (*dac.Output, error) {
	return lookup(r.outputs, "output", name)
}

func (r *Registry) EEPROM(name string) (*eeprom.Store, error) {
	return lookup(r.eeproms, KindEEPROM, name)
}

// Names returns the sorted names of all devices and outputs.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.devices)+len(r.outputs))
	for _, d := range r.devices {
		names = append(names, d.Name)
	}
	names = append(names, slices.Collect(maps.Keys(r.outputs))...)
	slices.Sort(names)
	return names
}

// Devices lists the peripherals in declaration order.
func (r *Registry) Devices() []Device {
	return slices.Clone(r.devices)
}

// Probe checks that every peripheral acknowledges its address.
func (r *Registry) Probe(ctx context.Context) map[string]error {
	res := make(map[string]error, len(r.devices))
	for _, d := range r.devices {
		res[d.Name] = r.buses[d.Bus].Probe(ctx, d.Address)
	}
	return res
}

// Startup brings persistent storage into a known state: every EEPROM
// that does not carry the signature of this build is formatted and
// initialized.
func (r *Registry) Startup(ctx context.Context) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(r.eeproms)) {
		formatted, err := r.eeproms[name].EnsureInitialized(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if formatted {
			slog.Info("eeprom initialized", "device", name)
		}
	}
	return errors.Join(errs...)
}

// Close releases every backend that holds operating system resources.
func (r *Registry) Close() error {
	var errs []error
	for _, b := range r.backends {
		if c, ok := b.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	r.backends = nil
	return errors.Join(errs...)
}
