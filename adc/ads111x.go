package adc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/afectx"
)

// DefaultAddress is the 7-bit address with ADDR tied to GND.
const DefaultAddress = 0x48

// completeAttempts bounds how many times CompleteConversion polls the device.
const completeAttempts = 2

var (
	ErrConversionPending = errors.New("adc: conversion still in progress")
	ErrNoConversion      = errors.New("adc: no conversion started")
	ErrChannelMismatch   = errors.New("adc: channel readback does not match request")
	ErrUnsupported       = errors.New("adc: not supported by this device")
)

// State of the conversion protocol.
type State uint8

const (
	StateIdle State = iota
	StateConverting
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConverting:
		return "converting"
	case StateReady:
		return "ready"
	}
	return "error"
}

type Opts struct {
	Name       string
	Address    byte
	Capability Capability
	Config     Config
}

type Opt func(*Opts)

func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

func WithAddress(address byte) Opt {
	return func(o *Opts) {
		o.Address = address
	}
}

func WithCapability(c Capability) Opt {
	return func(o *Opts) {
		o.Capability = c
	}
}

// WithConfig sets gain, data rate and comparator settings used for every
// conversion. Status, mux and mode are chosen per conversion.
func WithConfig(c Config) Opt {
	return func(o *Opts) {
		o.Config = c
	}
}

// Converter runs the start/poll/complete protocol against one ADS111x.
// Conversion timing is deadline based: StartConversion records when the
// result is expected and CompleteConversion sleeps only until then.
//
//	c := adc.New(tr, adc.WithAddress(0x49))
//	if err := c.StartConversion(ctx, adc.MuxAIN0, adc.ModeSingleShot); err != nil { ... }
//	counts, err := c.CompleteConversion(ctx, adc.MuxAIN0)
type Converter struct {
	mx         sync.Mutex
	transport  *afe.Transport
	name       string
	address    byte
	capability Capability
	config     Config

	state    State
	deadline time.Time
	mux      Mux
	mode     Mode
	counts   int16
}

func New(transport *afe.Transport, opts ...Opt) *Converter {
	config := Opts{
		Address:    DefaultAddress,
		Capability: ADS1115,
		Config:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("%s@%#02x", config.Capability.Name, config.Address)
	}
	return &Converter{
		transport:  transport,
		name:       config.Name,
		address:    config.Address,
		capability: config.Capability,
		config:     config.Capability.Apply(config.Config),
	}
}

func (c *Converter) Name() string { return c.name }
func (c *Converter) Address() byte { return c.address }
func (c *Converter) Capability() Capability { return c.capability }
func (c *Converter) Transport() *afe.Transport { return c.transport }

func (c *Converter) Config() Config {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.config
}

func (c *Converter) State() State {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state
}

func (c *Converter) Deadline() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.deadline
}

// LastCounts returns the last completed conversion result.
func (c *Converter) LastCounts() int16 {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.counts
}

func (c *Converter) VoltsPerCount() float64 {
	return VoltsPerCount(c.Config().Gain)
}

func (c *Converter) Volts(counts int16) float64 {
	return float64(counts) * c.VoltsPerCount()
}

func (c *Converter) Potential(counts int16) physic.ElectricPotential {
	return physic.ElectricPotential(c.Volts(counts) * float64(physic.Volt))
}

// StartConversion writes a config word with OS set for mux. It is refused
// with ErrConversionPending while a previous conversion has not completed.
func (c *Converter) StartConversion(ctx context.Context, mux Mux, mode Mode) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.state == StateConverting {
		return ErrConversionPending
	}
	cfg := c.config
	cfg.Status = OpStart
	cfg.Mux = mux
	cfg.Mode = mode
	cfg = c.capability.Apply(cfg)
	if err := c.writeConfig(ctx, cfg); err != nil {
		c.state = StateError
		return fmt.Errorf("%s: could not start conversion: %w", c.name, err)
	}
	c.mux = cfg.Mux
	c.mode = cfg.Mode
	c.state = StateConverting
	c.deadline = time.Now().Add(ConversionLatency(cfg.Rate))
	return nil
}

// StartContinuous puts the device in continuous conversion mode on mux.
func (c *Converter) StartContinuous(ctx context.Context, mux Mux) error {
	return c.StartConversion(ctx, mux, ModeContinuous)
}

// CompleteConversion waits for the deadline and collects the result of the
// conversion started for mux. The device is polled at most twice; if it is
// still busy ErrConversionPending is returned and the conversion stays
// pending. A mux readback other than the requested one moves the converter
// to StateError.
func (c *Converter) CompleteConversion(ctx context.Context, mux Mux) (int16, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.state != StateConverting {
		return 0, fmt.Errorf("%s: %w (state %s)", c.name, ErrNoConversion, c.state)
	}
	want := c.capability.Apply(Config{Mux: mux}).Mux
	for range completeAttempts {
		if err := afe.SleepUntil(ctx, c.deadline); err != nil {
			return 0, err
		}
		cfg, err := c.readConfig(ctx)
		if err != nil {
			c.state = StateError
			return 0, fmt.Errorf("%s: could not read config: %w", c.name, err)
		}
		if cfg.Mux != want {
			c.state = StateError
			slog.Warn("adc channel mismatch", "device", c.name, "requested", want, "reported", cfg.Mux)
			return 0, fmt.Errorf("%s: requested %s, device reports %s: %w", c.name, want, cfg.Mux, ErrChannelMismatch)
		}
		if c.mode == ModeSingleShot && cfg.Status != OpStart {
			c.deadline = time.Now().Add(ConversionLatency(c.config.Rate))
			continue
		}
		raw, err := c.readRegister(ctx, RegConversion)
		if err != nil {
			c.state = StateError
			return 0, fmt.Errorf("%s: could not read conversion: %w", c.name, err)
		}
		c.counts = int16(raw)
		c.state = StateReady
		return c.counts, nil
	}
	slog.Debug("adc conversion not complete", "device", c.name, "mux", want)
	return 0, fmt.Errorf("%s: %w", c.name, ErrConversionPending)
}

// Read runs one single shot conversion of mux to completion.
func (c *Converter) Read(ctx context.Context, mux Mux) (int16, error) {
	if err := c.StartConversion(ctx, mux, ModeSingleShot); err != nil {
		return 0, err
	}
	return c.CompleteConversion(ctx, mux)
}

// IsDataReady reports whether the pending conversion finished. The device
// is only asked once the deadline has passed.
func (c *Converter) IsDataReady(ctx context.Context) (bool, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.state != StateConverting || time.Now().Before(c.deadline) {
		return false, nil
	}
	if c.mode == ModeContinuous {
		return true, nil
	}
	cfg, err := c.readConfig(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: could not read config: %w", c.name, err)
	}
	return cfg.Status == OpStart, nil
}

// ReadConfig reads and decodes the configuration register.
func (c *Converter) ReadConfig(ctx context.Context) (Config, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.readConfig(ctx)
}

// WriteConfig stores gain, rate and comparator settings and writes them to
// the device without starting a conversion.
func (c *Converter) WriteConfig(ctx context.Context, cfg Config) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.state == StateConverting {
		return ErrConversionPending
	}
	cfg = c.capability.Apply(cfg)
	cfg.Status = OpNoEffect
	if err := c.writeConfig(ctx, cfg); err != nil {
		return fmt.Errorf("%s: could not write config: %w", c.name, err)
	}
	c.config = cfg
	c.config.Status = OpStart
	return nil
}

// ReadRegister reads any register the device implements.
func (c *Converter) ReadRegister(ctx context.Context, reg Register) (uint16, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.readRegister(ctx, reg)
}

// SetThresholds programs the comparator window.
func (c *Converter) SetThresholds(ctx context.Context, lo, hi int16) error {
	if !c.capability.Comparator {
		return fmt.Errorf("%s: thresholds: %w", c.name, ErrUnsupported)
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.writeRegister(ctx, RegLoThresh, uint16(lo)); err != nil {
		return fmt.Errorf("%s: could not write low threshold: %w", c.name, err)
	}
	if err := c.writeRegister(ctx, RegHiThresh, uint16(hi)); err != nil {
		return fmt.Errorf("%s: could not write high threshold: %w", c.name, err)
	}
	return nil
}

func (c *Converter) Thresholds(ctx context.Context) (int16, int16, error) {
	if !c.capability.Comparator {
		return 0, 0, fmt.Errorf("%s: thresholds: %w", c.name, ErrUnsupported)
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	lo, err := c.readRegister(ctx, RegLoThresh)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: could not read low threshold: %w", c.name, err)
	}
	hi, err := c.readRegister(ctx, RegHiThresh)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: could not read high threshold: %w", c.name, err)
	}
	return int16(lo), int16(hi), nil
}

func (c *Converter) readConfig(ctx context.Context) (Config, error) {
	w, err := c.readRegister(ctx, RegConfig)
	if err != nil {
		return Config{}, err
	}
	return Unpack(w), nil
}

func (c *Converter) writeConfig(ctx context.Context, cfg Config) error {
	return c.writeRegister(ctx, RegConfig, cfg.Pack())
}

func (c *Converter) writeRegister(ctx context.Context, reg Register, value uint16) error {
	if reg > c.capability.MaxRegister {
		return fmt.Errorf("%s register: %w", reg, ErrUnsupported)
	}
	buf := []byte{byte(reg), 0, 0}
	binary.BigEndian.PutUint16(buf[1:], value)
	n, err := c.transport.Write(afectx.WithDevice(ctx, c.name), c.address, buf, false)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return afe.ErrShortTransfer
	}
	return nil
}

// readRegister sets the address pointer and reads two bytes with a repeated
// start so no other transaction can move the pointer in between.
func (c *Converter) readRegister(ctx context.Context, reg Register) (uint16, error) {
	if reg > c.capability.MaxRegister {
		return 0, fmt.Errorf("%s register: %w", reg, ErrUnsupported)
	}
	ctx = afectx.WithDevice(ctx, c.name)
	if _, err := c.transport.Write(ctx, c.address, []byte{byte(reg)}, true); err != nil {
		return 0, err
	}
	buf := make([]byte, 2)
	n, err := c.transport.Read(ctx, c.address, buf, false)
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, afe.ErrShortTransfer
	}
	return binary.BigEndian.Uint16(buf), nil
}
