package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/afe/cmd/afe/console"
	"github.com/mklimuk/afe/registry"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "board description",
	Subcommands: cli.Commands{
		&configDumpCmd,
	},
}

var configDumpCmd = cli.Command{
	Name:  "dump",
	Usage: "print the validated board description with defaults applied",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Fail("configuration error", err)
		}
		if err := registry.Validate(cfg); err != nil {
			return console.Exit(console.ExitError, "invalid configuration:\n%s", console.Red(err))
		}
		registry.Normalize(cfg)
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		err = enc.Encode(cfg)
		if err != nil {
			return console.Fail("encoding error", err)
		}
		return nil
	},
}
