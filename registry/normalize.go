package registry

import (
	"fmt"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/adc"
	eeprom "github.com/mklimuk/afe/memory/24lc32"
)

const defaultSupply = 5.0

// Normalize fills in defaults. It must only be called on a configuration
// that passed Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	for i := range cfg.Buses {
		b := &cfg.Buses[i]
		if b.Backend == "" {
			b.Backend = BackendPeriph
		}
		if b.Device == "" {
			switch b.Backend {
			case BackendPeriph:
				b.Device = fmt.Sprintf("/dev/i2c-%d", b.ID)
			case BackendGobot:
				b.Device = fmt.Sprint(int(b.ID))
			}
		}
		if b.TimeoutMs == 0 {
			b.TimeoutMs = int(afe.DefaultTimeout.Milliseconds())
		}
	}
	for i := range cfg.ADCs {
		a := &cfg.ADCs[i]
		if a.Variant == "" {
			a.Variant = adc.ADS1115.Name
		}
		if a.Rate == 0 {
			a.Rate = adc.SamplesPerSecond(adc.DefaultConfig().Rate)
		}
		if a.Range == 0 {
			a.Range = adc.FullScaleRange(adc.DefaultConfig().Gain)
		}
	}
	for i := range cfg.DACs {
		d := &cfg.DACs[i]
		if d.Supply == 0 {
			d.Supply = defaultSupply
		}
		for j := range d.Outputs {
			o := &d.Outputs[j]
			if o.Gain == 0 {
				o.Gain = 1
			}
			if o.Vref == "" {
				o.Vref = "internal"
			}
			if o.PowerDown == "" {
				o.PowerDown = "normal"
			}
		}
	}
	for i := range cfg.EEPROMs {
		e := &cfg.EEPROMs[i]
		if e.SettleMs == 0 {
			e.SettleMs = int(eeprom.DefaultSettle.Milliseconds())
		}
	}
}
