package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/adc"
	"github.com/mklimuk/afe/dac"
	eeprom "github.com/mklimuk/afe/memory/24lc32"
)

// Validate checks the board description. It reports every problem found
// and does not modify cfg. Zero values stand for defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("no configuration")
	}
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	buses := make(map[afe.BusID]bool)
	for _, b := range cfg.Buses {
		if !b.ID.Valid() {
			fail("bus %d: id must be 0 or 1", b.ID)
			continue
		}
		if buses[b.ID] {
			fail("bus %d: declared twice", b.ID)
		}
		buses[b.ID] = true
		switch b.Backend {
		case "", BackendPeriph, BackendGobot, BackendMCP2221:
		default:
			fail("bus %d: unknown backend %q", b.ID, b.Backend)
		}
		if b.SpeedHz < 0 || b.TimeoutMs < 0 {
			fail("bus %d: speed and timeout must not be negative", b.ID)
		}
	}

	names := make(map[string]string)
	name := func(kind, n string) {
		if n == "" {
			fail("%s: name is required", kind)
			return
		}
		if prev, ok := names[n]; ok {
			fail("%s %q: name already used by a %s", kind, n, prev)
			return
		}
		names[n] = kind
	}

	// key = bus | 7-bit address
	owners := make(map[string]string)
	claim := func(kind, n string, bus afe.BusID, address byte) {
		if !buses[bus] {
			fail("%s %q: bus %d is not declared", kind, n, bus)
			return
		}
		key := fmt.Sprintf("%d|%#02x", bus, address)
		if prev, ok := owners[key]; ok {
			fail("address collision: %s %#02x used by %q and %q", bus, address, prev, n)
			return
		}
		owners[key] = n
	}

	for _, a := range cfg.ADCs {
		name("adc", a.Name)
		if a.Address < adc.DefaultAddress || a.Address > adc.DefaultAddress+3 {
			fail("adc %q: address %#02x outside 0x48..0x4b", a.Name, a.Address)
		}
		claim("adc", a.Name, a.Bus, a.Address)
		if _, err := adc.CapabilityByName(a.Variant); err != nil {
			fail("adc %q: %w", a.Name, err)
		}
		if _, err := dataRate(a.Rate); err != nil {
			fail("adc %q: %w", a.Name, err)
		}
		if _, err := gain(a.Range); err != nil {
			fail("adc %q: %w", a.Name, err)
		}
	}

	for _, d := range cfg.DACs {
		name("dac", d.Name)
		if d.SubAddress > 7 {
			fail("dac %q: sub address %d outside 0..7", d.Name, d.SubAddress)
		}
		if d.Supply < 0 {
			fail("dac %q: supply must not be negative", d.Name)
		}
		claim("dac", d.Name, d.Bus, dac.BaseAddress|d.SubAddress&0x07)
		channels := make(map[dac.Channel]string)
		for _, o := range d.Outputs {
			name("output", o.Name)
			cc, err := channelConfig(o)
			if err != nil {
				fail("output %q: %w", o.Name, err)
				continue
			}
			if prev, ok := channels[cc.Channel]; ok {
				fail("dac %q: channel %s bound to %q and %q", d.Name, cc.Channel, prev, o.Name)
			}
			channels[cc.Channel] = o.Name
		}
	}

	for _, e := range cfg.EEPROMs {
		name("eeprom", e.Name)
		if e.ChipSelect > 7 {
			fail("eeprom %q: chip select %d outside 0..7", e.Name, e.ChipSelect)
		}
		if e.SettleMs < 0 {
			fail("eeprom %q: settle time must not be negative", e.Name)
		}
		claim("eeprom", e.Name, e.Bus, eeprom.ControlByte(e.ChipSelect))
	}

	return errors.Join(errs...)
}

func dataRate(sps int) (adc.DataRate, error) {
	if sps == 0 {
		return adc.Rate860, nil
	}
	for r := adc.Rate8; r <= adc.Rate860; r++ {
		if adc.SamplesPerSecond(r) == sps {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unsupported data rate %d SPS", sps)
}

func gain(fsr float64) (adc.Gain, error) {
	if fsr == 0 {
		return adc.Gain2048, nil
	}
	for g := adc.Gain6144; g <= adc.Gain0256; g++ {
		if adc.FullScaleRange(g) == fsr {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unsupported full scale range %gV", fsr)
}

func channelConfig(o OutputConfig) (dac.ChannelConfig, error) {
	var cc dac.ChannelConfig
	ch, err := dac.ParseChannel(o.Channel)
	if err != nil {
		return cc, err
	}
	cc.Channel = ch
	switch o.Gain {
	case 0, 1:
		cc.Gain = dac.GainX1
	case 2:
		cc.Gain = dac.GainX2
	default:
		return cc, fmt.Errorf("gain must be 1 or 2, got %d", o.Gain)
	}
	switch strings.ToLower(o.Vref) {
	case "", "internal":
		cc.Vref = dac.VrefInternal
	case "vdd":
		cc.Vref = dac.VrefVDD
	default:
		return cc, fmt.Errorf("unknown vref %q", o.Vref)
	}
	switch strings.ToLower(o.PowerDown) {
	case "", "normal":
		cc.PowerDown = dac.PowerNormal
	case "1k":
		cc.PowerDown = dac.PowerDown1K
	case "100k":
		cc.PowerDown = dac.PowerDown100K
	case "500k":
		cc.PowerDown = dac.PowerDown500K
	default:
		return cc, fmt.Errorf("unknown power down mode %q", o.PowerDown)
	}
	return cc, nil
}
