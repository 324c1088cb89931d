package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/afe"
)

type Backend string

const (
	BackendPeriph  Backend = "periph"
	BackendGobot   Backend = "gobot"
	BackendMCP2221 Backend = "mcp2221"
)

type Config struct {
	Buses   []BusConfig    `yaml:"buses"`
	ADCs    []ADCConfig    `yaml:"adcs"`
	DACs    []DACConfig    `yaml:"dacs"`
	EEPROMs []EEPROMConfig `yaml:"eeproms"`
}

// ---- BUS ----

type BusConfig struct {
	ID      afe.BusID `yaml:"id"`
	Backend Backend   `yaml:"backend"`
	// Device is the periph bus name, the gobot bus number or the MCP2221
	// enumeration index, depending on Backend.
	Device    string `yaml:"device"`
	SpeedHz   int    `yaml:"speed_hz"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

func (b BusConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// ---- DEVICES ----

type ADCConfig struct {
	Name    string    `yaml:"name"`
	Bus     afe.BusID `yaml:"bus"`
	Address byte      `yaml:"address"`
	Variant string    `yaml:"variant"`
	// Rate in samples per second, Range as full scale volts.
	Rate  int     `yaml:"rate"`
	Range float64 `yaml:"range"`
}

type DACConfig struct {
	Name       string         `yaml:"name"`
	Bus        afe.BusID      `yaml:"bus"`
	SubAddress byte           `yaml:"sub_address"`
	Supply     float64        `yaml:"supply"`
	Deferred   bool           `yaml:"deferred"`
	Outputs    []OutputConfig `yaml:"outputs"`
}

type OutputConfig struct {
	Name      string `yaml:"name"`
	Channel   string `yaml:"channel"`
	Gain      int    `yaml:"gain"`
	Vref      string `yaml:"vref"`
	PowerDown string `yaml:"power_down"`
}

type EEPROMConfig struct {
	Name       string    `yaml:"name"`
	Bus        afe.BusID `yaml:"bus"`
	ChipSelect byte      `yaml:"chip_select"`
	SettleMs   int       `yaml:"settle_ms"`
}

// Load reads a YAML board description.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Default describes the instrument board: converters and the grid DAC on
// bus 0, the anode converter, anode DAC and identification EEPROM on bus 1.
func Default() *Config {
	return &Config{
		Buses: []BusConfig{
			{ID: afe.Bus0, Backend: BackendPeriph, Device: "/dev/i2c-0"},
			{ID: afe.Bus1, Backend: BackendPeriph, Device: "/dev/i2c-1"},
		},
		ADCs: []ADCConfig{
			{Name: "heater_grid1", Bus: afe.Bus0, Address: 0x48},
			{Name: "grid2_grid3", Bus: afe.Bus0, Address: 0x49},
			{Name: "anode", Bus: afe.Bus1, Address: 0x48},
		},
		DACs: []DACConfig{
			{
				Name: "grid_dac",
				Bus:  afe.Bus0,
				Outputs: []OutputConfig{
					{Name: "heater", Channel: "A"},
					{Name: "suppressor", Channel: "B"},
					{Name: "extractor", Channel: "C"},
					{Name: "focus", Channel: "D"},
				},
			},
			{
				Name:    "anode_dac",
				Bus:     afe.Bus1,
				Outputs: []OutputConfig{{Name: "anode_hv", Channel: "A"}},
			},
		},
		EEPROMs: []EEPROMConfig{
			{Name: "eeprom0", Bus: afe.Bus1},
		},
	}
}
