package afe

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/afe/afectx"
)

// DefaultTimeout bounds every transaction. It is sized to cover clock
// stretching and EEPROM write cycles.
const DefaultTimeout = 100 * time.Millisecond

type TransportOpts struct {
	Timeout time.Duration
}

type TransportOpt func(*TransportOpts)

func WithTimeout(timeout time.Duration) TransportOpt {
	return func(o *TransportOpts) {
		if timeout > 0 {
			o.Timeout = timeout
		}
	}
}

type heldWrite struct {
	address byte
	data    []byte
}

// Transport serializes transactions on one bus instance and applies the
// fixed per-transaction timeout. It keeps no state across calls except a
// write issued with hold set, which is merged with the following read to the
// same address as a single repeated-start transaction. A transaction that
// times out keeps the bus claimed until the backend returns; the next call
// waits for it within its own timeout.
//
// Typical usage:
//
//	tr := afe.NewTransport(afe.Bus0, bus)
//	_, err := tr.Write(ctx, 0x48, []byte{0x00}, true)
//	_, err = tr.Read(ctx, 0x48, buf, false)
type Transport struct {
	mx      sync.Mutex
	id      BusID
	bus     I2CBus
	timeout time.Duration
	held    *heldWrite
	// pending is the completion of a transaction abandoned on timeout. The
	// bus stays claimed until it reports back.
	pending chan error
}

func NewTransport(id BusID, bus I2CBus, opts ...TransportOpt) *Transport {
	config := TransportOpts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&config)
	}
	return &Transport{
		id:      id,
		bus:     bus,
		timeout: config.Timeout,
	}
}

func (t *Transport) ID() BusID {
	return t.id
}

func (t *Transport) Bus() I2CBus {
	return t.bus
}

func (t *Transport) Timeout() time.Duration {
	return t.timeout
}

// Write sends buf to the peripheral. On success the number of bytes written
// is returned. With hold set the STOP condition is deferred to the next call.
func (t *Transport) Write(ctx context.Context, address byte, buf []byte, hold bool) (int, error) {
	if address > 0x7F {
		return 0, fmt.Errorf("write to %#x: %w", address, ErrInvalidAddress)
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	if err := t.flush(ctx); err != nil {
		return 0, err
	}
	data := append([]byte(nil), buf...)
	if hold {
		t.held = &heldWrite{address: address, data: data}
		return len(buf), nil
	}
	t.dump(ctx, "i2c write", address, data)
	err := t.do(ctx, address, func(ctx context.Context) error {
		return t.bus.WriteToAddr(ctx, address, data)
	})
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Read fills buf from the peripheral. A pending held write to the same
// address is issued together with the read. Backends always terminate a
// read with STOP, so hold only matters for writes.
func (t *Transport) Read(ctx context.Context, address byte, buf []byte, hold bool) (int, error) {
	if address > 0x7F {
		return 0, fmt.Errorf("read from %#x: %w", address, ErrInvalidAddress)
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	scratch := make([]byte, len(buf))
	var err error
	if t.held != nil && t.held.address == address {
		w := t.held.data
		t.held = nil
		t.dump(ctx, "i2c write (held)", address, w)
		err = t.tx(ctx, address, w, scratch)
	} else {
		if err = t.flush(ctx); err != nil {
			return 0, err
		}
		err = t.do(ctx, address, func(ctx context.Context) error {
			return t.bus.ReadFromAddr(ctx, address, scratch)
		})
	}
	if err != nil {
		return 0, err
	}
	t.dump(ctx, "i2c read", address, scratch)
	copy(buf, scratch)
	return len(buf), nil
}

// Probe issues a zero-length write. It succeeds only if a device
// acknowledges its address.
func (t *Transport) Probe(ctx context.Context, address byte) error {
	_, err := t.Write(ctx, address, nil, false)
	return err
}

func (t *Transport) tx(ctx context.Context, address byte, w, r []byte) error {
	if txer, ok := t.bus.(Transactor); ok {
		return t.do(ctx, address, func(ctx context.Context) error {
			return txer.Tx(ctx, address, w, r)
		})
	}
	err := t.do(ctx, address, func(ctx context.Context) error {
		return t.bus.WriteToAddr(ctx, address, w)
	})
	if err != nil {
		return err
	}
	return t.do(ctx, address, func(ctx context.Context) error {
		return t.bus.ReadFromAddr(ctx, address, r)
	})
}

// flush sends a held write that was not followed by a matching read.
func (t *Transport) flush(ctx context.Context) error {
	if t.held == nil {
		return nil
	}
	h := t.held
	t.held = nil
	t.dump(ctx, "i2c write (flush)", h.address, h.data)
	return t.do(ctx, h.address, func(ctx context.Context) error {
		return t.bus.WriteToAddr(ctx, h.address, h.data)
	})
}

func (t *Transport) do(ctx context.Context, address byte, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if t.pending != nil {
		select {
		case <-t.pending:
			t.pending = nil
		case <-ctx.Done():
			slog.Debug("i2c bus still held by an abandoned transaction", "bus", t.id, "addr", fmt.Sprintf("%#02x", address))
			return fmt.Errorf("%s %#02x: previous transaction still running: %w", t.id, address, timeoutErr(ctx.Err()))
		}
	}
	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		t.pending = done
		err = timeoutErr(ctx.Err())
	}
	if err == nil {
		return nil
	}
	slog.Debug("i2c transaction failed", "bus", t.id, "addr", fmt.Sprintf("%#02x", address),
		"device", afectx.Device(ctx), "error", err)
	if errors.Is(err, ErrBusBusy) {
		_ = t.bus.Release(context.WithoutCancel(ctx))
	}
	return fmt.Errorf("%s %#02x: %w", t.id, address, err)
}

func timeoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (t *Transport) dump(ctx context.Context, msg string, address byte, data []byte) {
	if !afectx.IsVerbose(ctx) {
		return
	}
	slog.Debug(msg, "bus", t.id, "addr", fmt.Sprintf("%#02x", address), "data", hex.EncodeToString(data))
}

// SleepUntil blocks until deadline or until ctx is done.
func SleepUntil(ctx context.Context, deadline time.Time) error {
	wait := time.Until(deadline)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
