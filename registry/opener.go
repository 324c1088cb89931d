package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/adapter"
	"github.com/mklimuk/afe/i2c"
)

// Opener turns a bus description into a bus backend.
type Opener interface {
	Open(ctx context.Context, cfg BusConfig) (afe.I2CBus, error)
}

type OpenerFunc func(ctx context.Context, cfg BusConfig) (afe.I2CBus, error)

func (f OpenerFunc) Open(ctx context.Context, cfg BusConfig) (afe.I2CBus, error) {
	return f(ctx, cfg)
}

// HardwareOpener opens real controllers: host buses through periph.io or
// gobot and USB bridges through the MCP2221 adapter. HID overrides how
// MCP2221 handles are opened.
type HardwareOpener struct {
	HID adapter.Opener
}

func (o HardwareOpener) Open(ctx context.Context, cfg BusConfig) (afe.I2CBus, error) {
	switch cfg.Backend {
	case BackendPeriph, "":
		var opts []i2c.GenericBusOpt
		if cfg.SpeedHz > 0 {
			opts = append(opts, i2c.WithSpeed(physic.Frequency(cfg.SpeedHz)*physic.Hertz))
		}
		return i2c.NewGenericBus(cfg.Device, opts...)
	case BackendGobot:
		nr := -1
		if cfg.Device != "" {
			var err error
			if nr, err = strconv.Atoi(cfg.Device); err != nil {
				return nil, fmt.Errorf("gobot bus number %q: %w", cfg.Device, err)
			}
		}
		if cfg.SpeedHz > 0 {
			slog.Warn("bus speed is fixed by the board for gobot buses", "bus", cfg.ID, "speed_hz", cfg.SpeedHz)
		}
		return i2c.NewNanoPiBus(nr)
	case BackendMCP2221:
		index := -1
		if cfg.Device != "" {
			var err error
			if index, err = strconv.Atoi(cfg.Device); err != nil {
				return nil, fmt.Errorf("mcp2221 index %q: %w", cfg.Device, err)
			}
		}
		opts := []adapter.MCP2221Opt{adapter.WithIndex(index)}
		if o.HID != nil {
			opts = append(opts, adapter.WithOpener(o.HID))
		}
		bridge := adapter.NewMCP2221(opts...)
		if err := bridge.Init(ctx); err != nil {
			return nil, fmt.Errorf("mcp2221 init: %w", err)
		}
		if cfg.SpeedHz > 0 {
			if err := bridge.SetSpeed(ctx, cfg.SpeedHz); err != nil {
				// the bridge is not handed out, leave it without a transfer in flight
				if rerr := bridge.Release(context.WithoutCancel(ctx)); rerr != nil {
					slog.Warn("could not release mcp2221 after failed setup", "bus", cfg.ID, "error", rerr)
				}
				return nil, fmt.Errorf("mcp2221 speed %d Hz: %w", cfg.SpeedHz, err)
			}
		}
		return bridge, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
