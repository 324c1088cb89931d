package eeprom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mklimuk/afe/datetime"
)

const (
	SignatureLength     = 11
	signatureDateOffset = 7
)

var signaturePattern = [signatureDateOffset]byte{0x00, 0x40, 0x65, 0x5D, 0x6A, 0x61, 0x00}

// ComputeSignature returns the marker stored in PageSignature by a firmware
// built on date.
func ComputeSignature(date datetime.Packed) [SignatureLength]byte {
	var sig [SignatureLength]byte
	copy(sig[:], signaturePattern[:])
	b := date.Bytes()
	copy(sig[signatureDateOffset:], b[:])
	return sig
}

// CheckSignature reports whether the signature page matches this build.
func (s *Store) CheckSignature(ctx context.Context) (bool, error) {
	page, err := s.ReadPage(ctx, PageSignature)
	if err != nil {
		return false, err
	}
	want := ComputeSignature(s.buildDate)
	return bytes.Equal(page[:SignatureLength], want[:]), nil
}

// FormatAll fills every page with the same random pattern. It keeps going
// past failed pages and returns all failures.
func (s *Store) FormatAll(ctx context.Context) error {
	pattern := make([]byte, PageSize)
	if _, err := io.ReadFull(s.rand, pattern); err != nil {
		return fmt.Errorf("%s: could not generate format pattern: %w", s.name, err)
	}
	var errs []error
	for id := PageID(0); id < PageCount; id++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := s.WritePage(ctx, id, pattern); err != nil {
			slog.Warn("eeprom page format failed", "device", s.name, "page", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitializePage writes the initial content of id. Pages without a defined
// layout are left untouched.
func (s *Store) InitializePage(ctx context.Context, id PageID) error {
	if !id.Valid() {
		return fmt.Errorf("%s: page %d: %w", s.name, id, ErrPageRange)
	}
	content, ok := s.pageContent(id)
	if !ok {
		return nil
	}
	if err := s.WritePage(ctx, id, content); err != nil {
		slog.Error("eeprom page initialization failed", "device", s.name, "page", id, "error", err)
		return err
	}
	return nil
}

// InitializeAll initializes every page, continuing past failures.
func (s *Store) InitializeAll(ctx context.Context) error {
	var errs []error
	for id := PageID(0); id < PageCount; id++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := s.InitializePage(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EnsureInitialized formats and initializes the device unless it already
// carries the signature of this build. It reports whether it had to.
//
// A signature page that cannot be read is treated as a mismatch, so a single
// failed read erases any calibration data on the device.
func (s *Store) EnsureInitialized(ctx context.Context) (bool, error) {
	ok, err := s.CheckSignature(ctx)
	switch {
	case err != nil:
		slog.Warn("eeprom signature unreadable, formatting", "device", s.name, "error", err)
	case ok:
		return false, nil
	default:
		slog.Info("eeprom signature mismatch, formatting", "device", s.name, "build_date", s.buildDate)
	}
	if err := s.FormatAll(ctx); err != nil {
		slog.Warn("eeprom format incomplete", "device", s.name, "error", err)
	}
	if err := s.InitializeAll(ctx); err != nil {
		return true, fmt.Errorf("%s: initialization failed: %w", s.name, err)
	}
	return true, nil
}
