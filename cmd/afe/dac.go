package main

import (
	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/afe/cmd/afe/console"
)

var dacCmd = cli.Command{
	Name:  "dac",
	Usage: "MCP4728 outputs",
	Subcommands: cli.Commands{
		&dacSetCmd,
	},
}

var dacSetCmd = cli.Command{
	Name:      "set",
	Usage:     "drive an output with counts or a voltage",
	ArgsUsage: "<output>",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "counts", Usage: "raw register value, clamped to 4095"},
		&cli.StringFlag{Name: "voltage", Aliases: []string{"v"}, Usage: "target voltage, e.g. 1.2V or 850mV"},
	},
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return console.Exit(console.ExitError, "output name is required")
		}
		if c.IsSet("counts") == c.IsSet("voltage") {
			return console.Exit(console.ExitError, "exactly one of --counts and --voltage is required")
		}
		var target physic.ElectricPotential
		if c.IsSet("voltage") {
			if err := target.Set(c.String("voltage")); err != nil {
				return console.Fail("invalid voltage", err)
			}
		}
		reg, err := openRegistry(c)
		if err != nil {
			return err
		}
		defer closeRegistry(reg)
		out, err := reg.Output(name)
		if err != nil {
			return console.Fault(err)
		}
		ctx := commandContext(c)
		if c.IsSet("counts") {
			err = out.Set(ctx, uint16(min(c.Uint("counts"), 0xffff)))
		} else {
			err = out.SetVoltage(ctx, target)
		}
		if err != nil {
			return console.Fail("could not write output", err)
		}
		console.PInfof(console.PictoBolt, "%s: %d counts, %s", out.Name, out.Counts(), console.Value(out.Voltage()))
		return nil
	},
}
