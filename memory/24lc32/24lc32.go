// Package eeprom drives the Microchip 24LC32 32-Kbit I2C EEPROM.
//
// The array is handled as 128 pages of 32 bytes. Writes are gated on the
// device finishing its previous internal write cycle: the driver waits for
// the settle time and then polls for an address acknowledge, a bounded
// number of times.
//
// Example usage:
//
//	tr := afe.NewTransport(afe.Bus1, bus)
//	e := eeprom.New(tr, eeprom.WithChipSelect(0))
//	if _, err := e.EnsureInitialized(ctx); err != nil { ... }
//	page, _ := e.ReadPage(ctx, eeprom.PageCompany)
package eeprom

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/afectx"
	"github.com/mklimuk/afe/datetime"
)

const (
	DeviceCode = 0x50
	PageSize   = 32
	PageCount  = 128
	Capacity   = PageSize * PageCount

	DefaultSettle   = 5 * time.Millisecond
	DefaultAttempts = 3

	addressSize = 2
)

var (
	ErrNotReady        = errors.New("eeprom: device not ready")
	ErrPageRange       = errors.New("eeprom: page out of range")
	ErrPayloadTooLarge = errors.New("eeprom: payload larger than a page")
	ErrOutOfRange      = errors.New("eeprom: access beyond capacity")
)

// PageID numbers a 32-byte page.
type PageID uint8

func (id PageID) Valid() bool {
	return id < PageCount
}

// ControlByte is the 7-bit bus address for chip select cs.
func ControlByte(cs byte) byte {
	return DeviceCode | cs&0x07
}

// PageAddress is the byte offset of page id.
func PageAddress(id PageID) uint16 {
	return uint16(id) * PageSize
}

type Opts struct {
	Name        string
	ChipSelect  byte
	Settle      time.Duration
	Attempts    int
	BuildDate   datetime.Packed
	Rand        io.Reader
	ProductInfo ProductInfo
}

type Opt func(*Opts)

func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

func WithChipSelect(cs byte) Opt {
	return func(o *Opts) {
		o.ChipSelect = cs & 0x07
	}
}

// WithSettle sets the internal write cycle time waited before polling.
func WithSettle(d time.Duration) Opt {
	return func(o *Opts) {
		o.Settle = d
	}
}

// WithAttempts bounds the acknowledge polls made before a write.
func WithAttempts(n int) Opt {
	return func(o *Opts) {
		o.Attempts = max(n, 1)
	}
}

// WithBuildDate sets the date embedded in the signature page.
func WithBuildDate(date datetime.Packed) Opt {
	return func(o *Opts) {
		o.BuildDate = date
	}
}

// WithRand sets the source of the pattern written by FormatAll.
func WithRand(r io.Reader) Opt {
	return func(o *Opts) {
		o.Rand = r
	}
}

func WithProductInfo(info ProductInfo) Opt {
	return func(o *Opts) {
		o.ProductInfo = info
	}
}

// Store is one 24LC32 on a transport.
type Store struct {
	mx        sync.Mutex
	transport *afe.Transport
	name      string
	address   byte
	settle    time.Duration
	attempts  int
	buildDate datetime.Packed
	rand      io.Reader
	info      ProductInfo
	readyTime time.Time
}

func New(transport *afe.Transport, opts ...Opt) *Store {
	config := Opts{
		Settle:      DefaultSettle,
		Attempts:    DefaultAttempts,
		Rand:        rand.Reader,
		ProductInfo: DefaultProductInfo(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	address := ControlByte(config.ChipSelect)
	if config.Name == "" {
		config.Name = fmt.Sprintf("24LC32@%#02x", address)
	}
	return &Store{
		transport: transport,
		name:      config.Name,
		address:   address,
		settle:    config.Settle,
		attempts:  config.Attempts,
		buildDate: config.BuildDate,
		rand:      config.Rand,
		info:      config.ProductInfo,
	}
}

func (s *Store) Name() string { return s.name }
func (s *Store) Address() byte { return s.address }
func (s *Store) BuildDate() datetime.Packed { return s.buildDate }

// ReadPage returns the 32 bytes of page id.
func (s *Store) ReadPage(ctx context.Context, id PageID) ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%s: page %d: %w", s.name, id, ErrPageRange)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	buf := make([]byte, PageSize)
	if err := s.read(ctx, PageAddress(id), buf); err != nil {
		return nil, fmt.Errorf("%s: could not read page %d: %w", s.name, id, err)
	}
	return buf, nil
}

// WritePage stores payload at the start of page id. Shorter payloads are
// zero padded to a full page.
func (s *Store) WritePage(ctx context.Context, id PageID, payload []byte) error {
	if !id.Valid() {
		return fmt.Errorf("%s: page %d: %w", s.name, id, ErrPageRange)
	}
	if len(payload) > PageSize {
		return fmt.Errorf("%s: page %d: %d bytes: %w", s.name, id, len(payload), ErrPayloadTooLarge)
	}
	page := make([]byte, PageSize)
	copy(page, payload)
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.write(ctx, PageAddress(id), page); err != nil {
		return fmt.Errorf("%s: could not write page %d: %w", s.name, id, err)
	}
	return nil
}

// Read returns length bytes starting at address. The range is fetched in
// page sized sequential reads so that no transfer exceeds what a USB bridge
// accepts.
func (s *Store) Read(ctx context.Context, address uint16, length int) ([]byte, error) {
	if length < 0 || int(address)+length > Capacity {
		return nil, fmt.Errorf("%s: read %d bytes at %#04x: %w", s.name, length, address, ErrOutOfRange)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	buf := make([]byte, length)
	for off := 0; off < length; {
		at := address + uint16(off)
		space := PageSize - int(at%PageSize)
		chunk := buf[off : off+min(space, length-off)]
		if err := s.read(ctx, at, chunk); err != nil {
			return nil, fmt.Errorf("%s: could not read %#04x: %w", s.name, at, err)
		}
		off += len(chunk)
	}
	return buf, nil
}

// Write stores data at address, split on page boundaries as the device
// requires. Every chunk goes through the write gate.
func (s *Store) Write(ctx context.Context, address uint16, data []byte) error {
	if int(address)+len(data) > Capacity {
		return fmt.Errorf("%s: write %d bytes at %#04x: %w", s.name, len(data), address, ErrOutOfRange)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	for len(data) > 0 {
		space := PageSize - int(address%PageSize)
		chunk := data[:min(space, len(data))]
		if err := s.write(ctx, address, chunk); err != nil {
			return fmt.Errorf("%s: could not write %#04x: %w", s.name, address, err)
		}
		data = data[len(chunk):]
		address += uint16(len(chunk))
	}
	return nil
}

// IsWriteReady reports whether the device acknowledges within the
// configured number of attempts.
func (s *Store) IsWriteReady(ctx context.Context) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.isWriteReady(ctx)
}

func (s *Store) isWriteReady(ctx context.Context) bool {
	ctx = afectx.WithDevice(ctx, s.name)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := afe.SleepUntil(ctx, s.readyTime); err != nil {
			return false
		}
		err := s.transport.Probe(ctx, s.address)
		if err == nil {
			return true
		}
		slog.Debug("eeprom busy", "device", s.name, "attempt", attempt, "error", err)
		s.readyTime = time.Now().Add(s.settle)
	}
	return false
}

// read waits out a running write cycle first: the device does not
// acknowledge its address until the cycle completes.
func (s *Store) read(ctx context.Context, address uint16, buf []byte) error {
	if !s.isWriteReady(ctx) {
		return ErrNotReady
	}
	ctx = afectx.WithDevice(ctx, s.name)
	var addr [addressSize]byte
	binary.BigEndian.PutUint16(addr[:], address)
	n, err := s.transport.Write(ctx, s.address, addr[:], false)
	if err != nil {
		return err
	}
	if n != addressSize {
		return afe.ErrShortTransfer
	}
	n, err = s.transport.Read(ctx, s.address, buf, false)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return afe.ErrShortTransfer
	}
	return nil
}

func (s *Store) write(ctx context.Context, address uint16, data []byte) error {
	if !s.isWriteReady(ctx) {
		return ErrNotReady
	}
	buf := make([]byte, addressSize, addressSize+len(data))
	binary.BigEndian.PutUint16(buf, address)
	buf = append(buf, data...)
	n, err := s.transport.Write(afectx.WithDevice(ctx, s.name), s.address, buf, false)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return afe.ErrShortTransfer
	}
	s.readyTime = time.Now().Add(s.settle)
	return nil
}
