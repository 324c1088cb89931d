package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/afe/cmd/afe/console"
)

var startupCmd = cli.Command{
	Name:  "startup",
	Usage: "power-on sequence: probe every device, then bring the EEPROMs to this build",
	Action: func(c *cli.Context) error {
		reg, err := openRegistry(c)
		if err != nil {
			return err
		}
		defer closeRegistry(reg)
		ctx := commandContext(c)
		probe := reg.Probe(ctx)
		for _, d := range reg.Devices() {
			if err := probe[d.Name]; err != nil {
				console.Warnf("%s (%s %#02x) did not respond: %s", d.Name, d.Bus, d.Address, err)
			}
		}
		if err := reg.Startup(ctx); err != nil {
			return console.Fail("startup error", err)
		}
		console.PInfof(console.PictoFinish, "startup complete")
		return nil
	},
}
