package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/afe/adc"
	"github.com/mklimuk/afe/cmd/afe/console"
)

var adcDeviceFlag = &cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "converter name", Required: true}
var adcMuxFlag = &cli.StringFlag{Name: "mux", Aliases: []string{"m"}, Usage: "input selection, e.g. AIN0 or AIN0-AIN1", Value: "AIN0"}

var adcCmd = cli.Command{
	Name:  "adc",
	Usage: "ADS111x converters",
	Subcommands: cli.Commands{
		&adcReadCmd,
		&adcWatchCmd,
		&adcConfigCmd,
	},
}

var adcReadCmd = cli.Command{
	Name:  "read",
	Usage: "run a single shot conversion",
	Flags: []cli.Flag{adcDeviceFlag, adcMuxFlag},
	Action: func(c *cli.Context) error {
		mux, err := parseMux(c.String("mux"))
		if err != nil {
			return console.Fault(err)
		}
		reg, err := openRegistry(c)
		if err != nil {
			return err
		}
		defer closeRegistry(reg)
		conv, err := reg.ADC(c.String("device"))
		if err != nil {
			return console.Fault(err)
		}
		ctx := commandContext(c)
		counts, err := conv.Read(ctx, mux)
		if err != nil {
			return console.Fail("conversion error", err)
		}
		console.PInfof(console.PictoGauge, "%s %s: %d counts, %s", conv.Name(), mux, counts, console.Value(conv.Potential(counts)))
		return nil
	},
}

var adcWatchCmd = cli.Command{
	Name:  "watch",
	Usage: "read a converter periodically",
	Flags: []cli.Flag{
		adcDeviceFlag,
		adcMuxFlag,
		&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Value: time.Second},
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "stop after n reads, 0 runs until interrupted"},
	},
	Action: func(c *cli.Context) error {
		mux, err := parseMux(c.String("mux"))
		if err != nil {
			return console.Fault(err)
		}
		reg, err := openRegistry(c)
		if err != nil {
			return err
		}
		defer closeRegistry(reg)
		cached, err := reg.CachedADC(c.String("device"))
		if err != nil {
			return console.Fault(err)
		}
		ctx := commandContext(c)
		if err := cached.Converter().StartContinuous(ctx, mux); err != nil {
			return console.Fail("could not start conversions", err)
		}
		ticker := time.NewTicker(c.Duration("interval"))
		defer ticker.Stop()
		for n := 1; ; n++ {
			counts, err := cached.ReadConversion(ctx, false)
			if err != nil {
				console.Errorf("conversion error: %s", console.Red(err))
			} else {
				console.Printf("%s %d\t%s\n", time.Now().Format(time.TimeOnly), counts, cached.Converter().Potential(counts))
			}
			if c.Int("count") > 0 && n >= c.Int("count") {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

var adcConfigCmd = cli.Command{
	Name:  "config",
	Usage: "show the configuration register",
	Flags: []cli.Flag{adcDeviceFlag},
	Action: func(c *cli.Context) error {
		reg, err := openRegistry(c)
		if err != nil {
			return err
		}
		defer closeRegistry(reg)
		conv, err := reg.ADC(c.String("device"))
		if err != nil {
			return console.Fault(err)
		}
		ctx := commandContext(c)
		cfg, err := conv.ReadConfig(ctx)
		if err != nil {
			return console.Fail("could not read config register", err)
		}
		console.Printf("%s config %#04x\n", conv.Name(), cfg.Pack())
		if c.Bool("verbose") {
			console.Dump(cfg)
		}
		return nil
	},
}

func parseMux(s string) (adc.Mux, error) {
	for m := adc.MuxAIN0AIN1; m <= adc.MuxAIN3; m++ {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown input %q", s)
}
