package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/afe/afectx"
	"github.com/mklimuk/afe/cmd/afe/console"
	"github.com/mklimuk/afe/datetime"
	"github.com/mklimuk/afe/registry"
)

var version string
var commit string

// buildDate is set with -ldflags and seeds the EEPROM signature.
var buildDate string

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "afe"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, buildDate, commit)
	app.Usage = "analog front end bus tool"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "board description file, built-in board when empty",
			EnvVars: []string{"AFE_CONFIG"},
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging and wire dumps",
		},
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "do not ask for confirmation",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&adcCmd,
		&dacCmd,
		&eepromCmd,
		&busCmd,
		&configCmd,
		&startupCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}

// commandContext carries verbosity down to the transport dumps.
func commandContext(c *cli.Context) context.Context {
	return afectx.SetVerbose(c.Context, c.Bool("verbose"))
}

func loadConfig(c *cli.Context) (*registry.Config, error) {
	path := c.String("config")
	if path == "" {
		return registry.Default(), nil
	}
	return registry.Load(path)
}

// openRegistry opens every bus of the board. The caller closes the registry.
func openRegistry(c *cli.Context) (*registry.Registry, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, console.Fail("configuration error", err)
	}
	date, err := datetime.BuildDate(buildDate)
	if err != nil {
		slog.Warn("no usable build date, signatures will not match", "error", err)
	}
	reg, err := registry.New(commandContext(c), cfg, registry.HardwareOpener{}, registry.WithBuildDate(date))
	if err != nil {
		return nil, console.Fail("could not open devices", err)
	}
	return reg, nil
}

func closeRegistry(reg *registry.Registry) {
	if err := reg.Close(); err != nil {
		console.Errorf("error closing bus: %s", console.Red(err))
	}
}
