// Package adc drives the TI ADS111x family of 16-bit delta-sigma converters.
//
// The configuration register is handled as plain data: Config is packed to
// and unpacked from the 16-bit wire word with explicit masks and shifts.
// Numeric inputs converted to an enumerated field saturate at the field's
// highest legal value instead of failing, so a bad setting can never put
// the device in an undefined mode.
package adc

import (
	"fmt"
	"time"
)

// Register is the value written to the address pointer register.
type Register byte

const (
	RegConversion Register = iota
	RegConfig
	RegLoThresh
	RegHiThresh
)

func (r Register) String() string {
	switch r {
	case RegConversion:
		return "conversion"
	case RegConfig:
		return "config"
	case RegLoThresh:
		return "lo_thresh"
	case RegHiThresh:
		return "hi_thresh"
	}
	return fmt.Sprintf("register(%d)", byte(r))
}

// OpStatus is the OS bit. Written 1 starts a single conversion; read 0 means
// a conversion is in progress. OpError never reaches the wire.
type OpStatus uint8

const (
	OpNoEffect OpStatus = iota
	OpStart
	OpError
)

func (s OpStatus) String() string {
	switch s {
	case OpNoEffect:
		return "busy"
	case OpStart:
		return "done"
	}
	return "error"
}

// Mux selects the input pair. The first four are differential, the last
// four single ended against GND.
type Mux uint8

const (
	MuxAIN0AIN1 Mux = iota
	MuxAIN0AIN3
	MuxAIN1AIN3
	MuxAIN2AIN3
	MuxAIN0
	MuxAIN1
	MuxAIN2
	MuxAIN3
)

var muxNames = [...]string{"AIN0-AIN1", "AIN0-AIN3", "AIN1-AIN3", "AIN2-AIN3", "AIN0", "AIN1", "AIN2", "AIN3"}

func (m Mux) String() string {
	return muxNames[min(m, MuxAIN3)]
}

// Gain selects the programmable gain amplifier full scale range.
type Gain uint8

const (
	Gain6144 Gain = iota
	Gain4096
	Gain2048
	Gain1024
	Gain0512
	Gain0256
)

var fullScaleRange = [...]float64{6.144, 4.096, 2.048, 1.024, 0.512, 0.256}

func (g Gain) String() string {
	return fmt.Sprintf("±%.3fV", FullScaleRange(g))
}

type Mode uint8

const (
	ModeContinuous Mode = iota
	ModeSingleShot
)

func (m Mode) String() string {
	if m == ModeContinuous {
		return "continuous"
	}
	return "single-shot"
}

// DataRate selects samples per second.
type DataRate uint8

const (
	Rate8 DataRate = iota
	Rate16
	Rate32
	Rate64
	Rate128
	Rate250
	Rate475
	Rate860
)

var samplesPerSecond = [...]int{8, 16, 32, 64, 128, 250, 475, 860}

func (r DataRate) String() string {
	return fmt.Sprintf("%dSPS", SamplesPerSecond(r))
}

type CompMode uint8

const (
	CompTraditional CompMode = iota
	CompWindow
)

type CompPolarity uint8

const (
	CompActiveLow CompPolarity = iota
	CompActiveHigh
)

type CompLatch uint8

const (
	CompNonLatching CompLatch = iota
	CompLatching
)

// CompQueue sets how many conversions beyond threshold assert ALERT/RDY.
type CompQueue uint8

const (
	CompQueueAfter1 CompQueue = iota
	CompQueueAfter2
	CompQueueAfter4
	CompQueueDisable
)

func saturate[T ~uint8](n uint, max T) T {
	if n >= uint(max) {
		return max
	}
	return T(n)
}

func ToOpStatus(n uint) OpStatus { return saturate(n, OpError) }
func ToMux(n uint) Mux { return saturate(n, MuxAIN3) }
func ToGain(n uint) Gain { return saturate(n, Gain0256) }
func ToMode(n uint) Mode { return saturate(n, ModeSingleShot) }
func ToDataRate(n uint) DataRate { return saturate(n, Rate860) }
func ToCompMode(n uint) CompMode { return saturate(n, CompWindow) }
func ToCompPolarity(n uint) CompPolarity { return saturate(n, CompActiveHigh) }
func ToCompLatch(n uint) CompLatch { return saturate(n, CompLatching) }
func ToCompQueue(n uint) CompQueue { return saturate(n, CompQueueDisable) }

// Config is the decoded configuration register.
type Config struct {
	Status   OpStatus
	Mux      Mux
	Gain     Gain
	Mode     Mode
	Rate     DataRate
	CompMode CompMode
	Polarity CompPolarity
	Latch    CompLatch
	Queue    CompQueue
}

// DefaultConfig starts a single shot conversion of AIN0-AIN1 at ±2.048 V
// and 860 SPS with the comparator disabled.
func DefaultConfig() Config {
	return Config{
		Status:   OpStart,
		Mux:      MuxAIN0AIN1,
		Gain:     Gain2048,
		Mode:     ModeSingleShot,
		Rate:     Rate860,
		CompMode: CompTraditional,
		Polarity: CompActiveLow,
		Latch:    CompNonLatching,
		Queue:    CompQueueDisable,
	}
}

// field positions, MSB first: OS MUX PGA MODE DR COMP_MODE COMP_POL COMP_LAT COMP_QUE
const (
	osShift       = 15
	muxShift      = 12
	pgaShift      = 9
	modeShift     = 8
	drShift       = 5
	compModeShift = 4
	compPolShift  = 3
	compLatShift  = 2
	compQueShift  = 0

	oneBit    = 0b1
	twoBits   = 0b11
	threeBits = 0b111
)

func encodeStatus(s OpStatus) uint16 {
	if s == OpStart {
		return 1 << osShift
	}
	return 0
}

func decodeStatus(w uint16) OpStatus {
	return OpStatus(w >> osShift & oneBit)
}

func encodeMux(m Mux) uint16 {
	return uint16(ToMux(uint(m))) << muxShift
}

func decodeMux(w uint16) Mux {
	return Mux(w >> muxShift & threeBits)
}

func encodeGain(g Gain) uint16 {
	return uint16(ToGain(uint(g))) << pgaShift
}

// decodeGain folds the three reserved codes above 0.256 V onto 0.256 V as
// the device does.
func decodeGain(w uint16) Gain {
	return ToGain(uint(w >> pgaShift & threeBits))
}

func encodeMode(m Mode) uint16 {
	return uint16(ToMode(uint(m))) << modeShift
}

func decodeMode(w uint16) Mode {
	return Mode(w >> modeShift & oneBit)
}

func encodeRate(r DataRate) uint16 {
	return uint16(ToDataRate(uint(r))) << drShift
}

func decodeRate(w uint16) DataRate {
	return DataRate(w >> drShift & threeBits)
}

func encodeComparator(c Config) uint16 {
	return uint16(ToCompMode(uint(c.CompMode)))<<compModeShift |
		uint16(ToCompPolarity(uint(c.Polarity)))<<compPolShift |
		uint16(ToCompLatch(uint(c.Latch)))<<compLatShift |
		uint16(ToCompQueue(uint(c.Queue)))<<compQueShift
}

func decodeComparator(w uint16, c *Config) {
	c.CompMode = CompMode(w >> compModeShift & oneBit)
	c.Polarity = CompPolarity(w >> compPolShift & oneBit)
	c.Latch = CompLatch(w >> compLatShift & oneBit)
	c.Queue = CompQueue(w >> compQueShift & twoBits)
}

// Pack encodes c into the configuration register word.
func (c Config) Pack() uint16 {
	return encodeStatus(c.Status) |
		encodeMux(c.Mux) |
		encodeGain(c.Gain) |
		encodeMode(c.Mode) |
		encodeRate(c.Rate) |
		encodeComparator(c)
}

// Unpack decodes a configuration register word.
func Unpack(w uint16) Config {
	c := Config{
		Status: decodeStatus(w),
		Mux:    decodeMux(w),
		Gain:   decodeGain(w),
		Mode:   decodeMode(w),
		Rate:   decodeRate(w),
	}
	decodeComparator(w, &c)
	return c
}

// FullScaleRange returns the input range in volts for g.
func FullScaleRange(g Gain) float64 {
	return fullScaleRange[ToGain(uint(g))]
}

// VoltsPerCount is the weight of one LSB of the conversion result.
func VoltsPerCount(g Gain) float64 {
	return FullScaleRange(g) / 32767
}

func SamplesPerSecond(r DataRate) int {
	return samplesPerSecond[ToDataRate(uint(r))]
}

// BaseLatency is the conversion time allowed at 860 SPS, about 29% above
// the datasheet minimum.
const BaseLatency = 1500 * time.Microsecond

var latencyMultiplier = [...]time.Duration{
	Rate8:   108,
	Rate16:  54,
	Rate32:  27,
	Rate64:  13,
	Rate128: 7,
	Rate250: 3,
	Rate475: 2,
	Rate860: 1,
}

// ConversionLatency is how long a single conversion at r is given before the
// result is polled.
func ConversionLatency(r DataRate) time.Duration {
	return BaseLatency * latencyMultiplier[ToDataRate(uint(r))]
}
