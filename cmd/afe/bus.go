package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/cmd/afe/console"
)

var busCmd = cli.Command{
	Name:  "bus",
	Usage: "bus diagnostics",
	Subcommands: cli.Commands{
		&busProbeCmd,
		&busScanCmd,
	},
}

var busProbeCmd = cli.Command{
	Name:  "probe",
	Usage: "check that every configured device acknowledges",
	Action: func(c *cli.Context) error {
		reg, err := openRegistry(c)
		if err != nil {
			return err
		}
		defer closeRegistry(reg)
		res := reg.Probe(commandContext(c))

		w := tabwriter.NewWriter(os.Stdout, 16, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "NAME\tKIND\tBUS\tADDRESS\tSTATUS\n")
		missing := 0
		for _, d := range reg.Devices() {
			if res[d.Name] != nil {
				missing++
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Kind, d.Bus, console.Address(d.Address), console.Status(res[d.Name]))
		}
		_ = w.Flush()
		if missing > 0 {
			return console.Exit(console.ExitCheckFailed, "%d device(s) did not respond", missing)
		}
		return nil
	},
}

var busScanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe every 7-bit address on a bus",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "bus", Aliases: []string{"b"}, Usage: "bus id"},
	},
	Action: func(c *cli.Context) error {
		id := afe.BusID(c.Int("bus"))
		if !id.Valid() {
			return console.Exit(console.ExitError, "unknown bus %d", c.Int("bus"))
		}
		reg, err := openRegistry(c)
		if err != nil {
			return err
		}
		defer closeRegistry(reg)
		tr, err := reg.Bus(id)
		if err != nil {
			return console.Fault(err)
		}
		ctx := commandContext(c)
		found := 0
		// 0x00-0x07 and 0x78-0x7f are reserved
		for addr := byte(0x08); addr < 0x78; addr++ {
			if tr.Probe(ctx, addr) == nil {
				console.PInfof(console.PictoPin, "%s %s", id, console.Address(addr))
				found++
			}
		}
		console.Infof("%d device(s) found on %s", found, id)
		return nil
	},
}
