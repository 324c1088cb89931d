package main

import (
	"encoding/hex"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/afe/cmd/afe/console"
	eeprom "github.com/mklimuk/afe/memory/24lc32"
)

var eepromDeviceFlag = &cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "memory name", Value: "eeprom0"}

var eepromCmd = cli.Command{
	Name:  "eeprom",
	Usage: "24LC32 configuration memory",
	Subcommands: cli.Commands{
		&eepromReadCmd,
		&eepromWriteCmd,
		&eepromFormatCmd,
		&eepromInitCmd,
		&eepromCheckCmd,
		&eepromInfoCmd,
	},
}

func withStore(c *cli.Context, action func(store *eeprom.Store) error) error {
	reg, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer closeRegistry(reg)
	store, err := reg.EEPROM(c.String("device"))
	if err != nil {
		return console.Fault(err)
	}
	return action(store)
}

var eepromReadCmd = cli.Command{
	Name:  "read",
	Usage: "dump a page or an address range",
	Flags: []cli.Flag{
		eepromDeviceFlag,
		&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: -1},
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}},
		&cli.IntFlag{Name: "length", Aliases: []string{"l"}, Value: eeprom.PageSize},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(store *eeprom.Store) error {
			ctx := commandContext(c)
			var data []byte
			var err error
			if page := c.Int("page"); page >= 0 {
				if page >= eeprom.PageCount {
					return console.Exit(console.ExitError, "page out of range: %d", page)
				}
				data, err = store.ReadPage(ctx, eeprom.PageID(page))
			} else {
				addr := c.Int("address")
				if addr < 0 || addr >= eeprom.Capacity {
					return console.Exit(console.ExitError, "address out of range: %d", addr)
				}
				data, err = store.Read(ctx, uint16(addr), c.Int("length"))
			}
			if err != nil {
				return console.Fail("read error", err)
			}
			console.Printf("%s", hex.Dump(data))
			return nil
		})
	},
}

var eepromWriteCmd = cli.Command{
	Name:  "write",
	Usage: "write hex bytes to a page or an address",
	Flags: []cli.Flag{
		eepromDeviceFlag,
		&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: -1},
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}},
		&cli.StringFlag{Name: "data", Usage: "hex bytes to write (e.g. '01FF23')", Required: true},
	},
	Action: func(c *cli.Context) error {
		data, err := hex.DecodeString(c.String("data"))
		if err != nil {
			return console.Fail("invalid hex data", err)
		}
		return withStore(c, func(store *eeprom.Store) error {
			ctx := commandContext(c)
			if page := c.Int("page"); page >= 0 {
				err = store.WritePage(ctx, eeprom.PageID(page), data)
			} else {
				addr := c.Int("address")
				if addr < 0 || addr >= eeprom.Capacity {
					return console.Exit(console.ExitError, "address out of range: %d", addr)
				}
				err = store.Write(ctx, uint16(addr), data)
			}
			if err != nil {
				return console.Fail("write error", err)
			}
			console.Infof("%d bytes written", len(data))
			return nil
		})
	},
}

var eepromFormatCmd = cli.Command{
	Name:  "format",
	Usage: "fill every page with a random pattern",
	Flags: []cli.Flag{eepromDeviceFlag},
	Action: func(c *cli.Context) error {
		ok, err := console.Confirm("All calibration data will be lost. Continue?", c.Bool("yes"))
		if err != nil {
			return console.Fail("prompt error", err)
		}
		if !ok {
			console.PInfof(console.PictoStop, "aborted")
			return nil
		}
		return withStore(c, func(store *eeprom.Store) error {
			if err := store.FormatAll(commandContext(c)); err != nil {
				return console.Fail("format error", err)
			}
			console.PInfof(console.PictoFinish, "%s formatted", store.Name())
			return nil
		})
	},
}

var eepromInitCmd = cli.Command{
	Name:  "init",
	Usage: "write the factory pages and the signature",
	Flags: []cli.Flag{
		eepromDeviceFlag,
		&cli.BoolFlag{Name: "if-needed", Usage: "only when the signature does not match, formatting first"},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(store *eeprom.Store) error {
			ctx := commandContext(c)
			if c.Bool("if-needed") {
				formatted, err := store.EnsureInitialized(ctx)
				if err != nil {
					return console.Fail("initialization error", err)
				}
				if !formatted {
					console.PInfof(console.PictoCalendar, "%s already initialized for build %s", store.Name(), store.BuildDate())
					return nil
				}
				console.PInfof(console.PictoFinish, "%s formatted and initialized", store.Name())
				return nil
			}
			if err := store.InitializeAll(ctx); err != nil {
				return console.Fail("initialization error", err)
			}
			console.PInfof(console.PictoFinish, "%s initialized, build date %s", store.Name(), store.BuildDate())
			return nil
		})
	},
}

var eepromCheckCmd = cli.Command{
	Name:  "check",
	Usage: "compare the signature page with this build",
	Flags: []cli.Flag{eepromDeviceFlag},
	Action: func(c *cli.Context) error {
		return withStore(c, func(store *eeprom.Store) error {
			ctx := commandContext(c)
			ok, err := store.CheckSignature(ctx)
			if err != nil {
				return console.Fail("read error", err)
			}
			if !ok {
				page, _ := store.ReadPage(ctx, eeprom.PageSignature)
				want := eeprom.ComputeSignature(store.BuildDate())
				console.Warnf("signature mismatch\nwant %x\nhave %x", want, page[:min(len(page), eeprom.SignatureLength)])
				return console.Exit(console.ExitCheckFailed, "%s is not initialized for build %s", store.Name(), store.BuildDate())
			}
			console.PInfof(console.PictoCalendar, "%s signature matches build %s", store.Name(), console.Green(store.BuildDate()))
			return nil
		})
	},
}

type eepromInfo struct {
	Product eeprom.ProductInfo            `yaml:"product"`
	Control map[string]eeprom.ControlData `yaml:"control,omitempty"`
}

var eepromInfoCmd = cli.Command{
	Name:  "info",
	Usage: "decode product and control data pages",
	Flags: []cli.Flag{
		eepromDeviceFlag,
		&cli.BoolFlag{Name: "control", Usage: "include control data records"},
	},
	Action: func(c *cli.Context) error {
		return withStore(c, func(store *eeprom.Store) error {
			ctx := commandContext(c)
			var info eepromInfo
			var err error
			info.Product, err = store.ReadProductInfo(ctx)
			if err != nil {
				return console.Fail("read error", err)
			}
			if c.Bool("control") {
				info.Control = make(map[string]eeprom.ControlData)
				for s := eeprom.SupplyGrid1; s <= eeprom.SupplyHighVoltage; s++ {
					cd, err := store.ReadControlData(ctx, s)
					if err != nil {
						return console.Fail("read error", err)
					}
					info.Control[s.String()] = cd
				}
			}
			enc := yaml.NewEncoder(os.Stdout)
			err = enc.Encode(info)
			if err != nil {
				return console.Fail("encoding error", err)
			}
			return nil
		})
	},
}
