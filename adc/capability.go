package adc

import (
	"fmt"
	"strings"
)

// Capability describes what a family member implements. Fields the device
// lacks are forced to their reset values before a config is written.
type Capability struct {
	Name        string
	MaxRegister Register
	Mux         bool
	Gain        bool
	Comparator  bool
}

var (
	ADS1113 = Capability{Name: "ADS1113", MaxRegister: RegConfig}
	ADS1114 = Capability{Name: "ADS1114", MaxRegister: RegHiThresh, Gain: true, Comparator: true}
	ADS1115 = Capability{Name: "ADS1115", MaxRegister: RegHiThresh, Mux: true, Gain: true, Comparator: true}
)

func CapabilityByName(name string) (Capability, error) {
	switch strings.ToUpper(name) {
	case "ADS1113":
		return ADS1113, nil
	case "ADS1114":
		return ADS1114, nil
	case "ADS1115", "":
		return ADS1115, nil
	}
	return Capability{}, fmt.Errorf("unknown converter variant %q", name)
}

// Apply returns cfg restricted to the fields the device supports.
func (c Capability) Apply(cfg Config) Config {
	def := DefaultConfig()
	if !c.Mux {
		cfg.Mux = def.Mux
	}
	if !c.Gain {
		cfg.Gain = def.Gain
	}
	if !c.Comparator {
		cfg.CompMode = def.CompMode
		cfg.Polarity = def.Polarity
		cfg.Latch = def.Latch
		cfg.Queue = def.Queue
	}
	return cfg
}

func (c Capability) String() string {
	return c.Name
}
