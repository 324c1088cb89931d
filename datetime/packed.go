// Package datetime encodes calendar dates into the 32-bit packed form stored
// in device memory.
//
// Layout, LSB first: minute (bits 0-5), hour (8-12), day (16-20),
// month (24-27), years since YearBias (28-31). Seconds are not stored.
package datetime

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

const (
	YearBias = 2025
	MaxYear  = YearBias + yearMask
)

const (
	minuteShift = 0
	hourShift   = 8
	dayShift    = 16
	monthShift  = 24
	yearShift   = 28

	minuteMask = 0x3f
	hourMask   = 0x1f
	dayMask    = 0x1f
	monthMask  = 0x0f
	yearMask   = 0x0f
)

var (
	ErrYearBeforeBias   = errors.New("year before bias")
	ErrYearAfterMax     = errors.New("year after maximum")
	ErrMonthBelowOne    = errors.New("month below one")
	ErrMonthAboveTwelve = errors.New("month above twelve")
	ErrDayBelowOne      = errors.New("day below one")
	ErrDayForMonth      = errors.New("day invalid for month")
	ErrHour             = errors.New("hour above twenty three")
	ErrMinute           = errors.New("minute above fifty nine")
	ErrSecond           = errors.New("second above fifty nine")
	ErrNoBuildDate      = errors.New("build date unknown")
)

type DateTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

func (d DateTime) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second, 0, time.UTC)
}

func (d DateTime) String() string {
	return d.Time().Format(time.DateTime)
}

func daysIn(year int, month time.Month) int {
	switch month {
	case time.April, time.June, time.September, time.November:
		return 30
	case time.February:
		if year%4 == 0 && year%100 != 0 || year%400 == 0 {
			return 29
		}
		return 28
	}
	return 31
}

// Validate checks that d is a real date representable in packed form. The
// first violated field is reported.
func Validate(d DateTime) error {
	switch {
	case d.Year < YearBias:
		return fmt.Errorf("%d: %w", d.Year, ErrYearBeforeBias)
	case d.Year > MaxYear:
		return fmt.Errorf("%d: %w", d.Year, ErrYearAfterMax)
	case d.Month < 1:
		return fmt.Errorf("%d: %w", d.Month, ErrMonthBelowOne)
	case d.Month > 12:
		return fmt.Errorf("%d: %w", d.Month, ErrMonthAboveTwelve)
	case d.Day < 1:
		return fmt.Errorf("%d: %w", d.Day, ErrDayBelowOne)
	case d.Day > daysIn(d.Year, d.Month):
		return fmt.Errorf("%s %d: %w", d.Month, d.Day, ErrDayForMonth)
	case d.Hour < 0 || d.Hour > 23:
		return fmt.Errorf("%d: %w", d.Hour, ErrHour)
	case d.Minute < 0 || d.Minute > 59:
		return fmt.Errorf("%d: %w", d.Minute, ErrMinute)
	case d.Second < 0 || d.Second > 59:
		return fmt.Errorf("%d: %w", d.Second, ErrSecond)
	}
	return nil
}

type Packed uint32

// Pack validates d and encodes it.
func Pack(d DateTime) (Packed, error) {
	if err := Validate(d); err != nil {
		return 0, err
	}
	return Packed(uint32(d.Minute)<<minuteShift |
		uint32(d.Hour)<<hourShift |
		uint32(d.Day)<<dayShift |
		uint32(d.Month)<<monthShift |
		uint32(d.Year-YearBias)<<yearShift), nil
}

// Unpack decodes p, failing if the stored fields are not a valid date.
func (p Packed) Unpack() (DateTime, error) {
	d := DateTime{
		Year:   YearBias + int(p>>yearShift&yearMask),
		Month:  time.Month(p >> monthShift & monthMask),
		Day:    int(p >> dayShift & dayMask),
		Hour:   int(p >> hourShift & hourMask),
		Minute: int(p >> minuteShift & minuteMask),
	}
	return d, Validate(d)
}

// Bytes returns the little endian form written to memory.
func (p Packed) Bytes() [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(p))
	return b
}

func FromBytes(b []byte) Packed {
	return Packed(binary.LittleEndian.Uint32(b))
}

func (p Packed) String() string {
	d, err := p.Unpack()
	if err != nil {
		return fmt.Sprintf("invalid(%#08x)", uint32(p))
	}
	return d.String()
}

// FromTime packs t in UTC, dropping seconds.
func FromTime(t time.Time) (Packed, error) {
	t = t.UTC()
	return Pack(DateTime{Year: t.Year(), Month: t.Month(), Day: t.Day(), Hour: t.Hour(), Minute: t.Minute()})
}

// DateOf packs only the calendar day of t.
func DateOf(t time.Time) (Packed, error) {
	t = t.UTC()
	return Pack(DateTime{Year: t.Year(), Month: t.Month(), Day: t.Day()})
}

// BuildDate returns the packed calendar day the binary was built. s is the
// value injected with -ldflags, either RFC3339 or 2006-01-02. When s is
// empty the VCS commit time recorded by the toolchain is used.
func BuildDate(s string) (Packed, error) {
	if s == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return 0, ErrNoBuildDate
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				s = setting.Value
			}
		}
		if s == "" {
			return 0, ErrNoBuildDate
		}
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t)
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrNoBuildDate)
}
