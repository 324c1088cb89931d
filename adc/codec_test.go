package adc

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_RoundTrip(t *testing.T) {
	for status := OpNoEffect; status <= OpStart; status++ {
		for mux := MuxAIN0AIN1; mux <= MuxAIN3; mux++ {
			for gain := Gain6144; gain <= Gain0256; gain++ {
				for mode := ModeContinuous; mode <= ModeSingleShot; mode++ {
					for rate := Rate8; rate <= Rate860; rate++ {
						for cm := CompTraditional; cm <= CompWindow; cm++ {
							for pol := CompActiveLow; pol <= CompActiveHigh; pol++ {
								for lat := CompNonLatching; lat <= CompLatching; lat++ {
									for q := CompQueueAfter1; q <= CompQueueDisable; q++ {
										cfg := Config{status, mux, gain, mode, rate, cm, pol, lat, q}
										if got := Unpack(cfg.Pack()); got != cfg {
											require.Failf(t, "round trip", "%+v became %+v", cfg, got)
										}
									}
								}
							}
						}
					}
				}
			}
		}
	}
}

func TestConfig_Pack(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected uint16
	}{
		{name: "default", cfg: DefaultConfig(), expected: 0x85E3},
		{
			name: "single ended AIN0",
			cfg: func() Config {
				c := DefaultConfig()
				c.Mux = MuxAIN0
				return c
			}(),
			expected: 0xC5E3,
		},
		{
			name:     "continuous, 128 SPS, ±4.096V, window comparator",
			cfg:      Config{Status: OpNoEffect, Mux: MuxAIN3, Gain: Gain4096, Mode: ModeContinuous, Rate: Rate128, CompMode: CompWindow, Polarity: CompActiveHigh, Latch: CompLatching, Queue: CompQueueAfter2},
			expected: 0x729D,
		},
		{
			name: "error status never reaches the wire",
			cfg: func() Config {
				c := DefaultConfig()
				c.Status = OpError
				return c
			}(),
			expected: 0x05E3,
		},
		{
			name:     "out of range fields saturate",
			cfg:      Config{Status: OpStart, Mux: Mux(12), Gain: Gain(7), Mode: Mode(3), Rate: DataRate(9), Queue: CompQueue(8)},
			expected: 0x8000 | 0x7000 | 0x0A00 | 0x0100 | 0x00E0 | 0x0003,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, fmt.Sprintf("%#04x", tt.expected), fmt.Sprintf("%#04x", tt.cfg.Pack()))
		})
	}
}

func TestUnpack_ReservedGainCodes(t *testing.T) {
	for code := uint16(5); code <= 7; code++ {
		assert.Equal(t, Gain0256, Unpack(code<<pgaShift).Gain)
	}
}

func TestSaturatingConversions(t *testing.T) {
	assert.Equal(t, ToGain(5), ToGain(7))
	assert.Equal(t, Gain0256, ToGain(255))
	assert.Equal(t, Gain1024, ToGain(3))
	assert.Equal(t, MuxAIN3, ToMux(8))
	assert.Equal(t, MuxAIN1AIN3, ToMux(2))
	assert.Equal(t, OpError, ToOpStatus(3))
	assert.Equal(t, ModeSingleShot, ToMode(2))
	assert.Equal(t, Rate860, ToDataRate(100))
	assert.Equal(t, CompWindow, ToCompMode(4))
	assert.Equal(t, CompActiveHigh, ToCompPolarity(2))
	assert.Equal(t, CompLatching, ToCompLatch(9))
	assert.Equal(t, CompQueueDisable, ToCompQueue(4))
	assert.Equal(t, CompQueueAfter4, ToCompQueue(2))
}

func TestConversionLatency(t *testing.T) {
	assert.Equal(t, 1500*time.Microsecond, ConversionLatency(Rate860))
	assert.Equal(t, 162000*time.Microsecond, ConversionLatency(Rate8))
	assert.Equal(t, 108*BaseLatency, ConversionLatency(Rate8))
	assert.Equal(t, ConversionLatency(Rate860), ConversionLatency(DataRate(42)))
	for r := Rate8; r < Rate860; r++ {
		assert.Greater(t, ConversionLatency(r), ConversionLatency(r+1), "latency must drop as %s increases", r)
		assert.Less(t, SamplesPerSecond(r), SamplesPerSecond(r+1))
	}
}

func TestFullScaleRange(t *testing.T) {
	tests := []struct {
		gain Gain
		fsr  float64
	}{
		{Gain6144, 6.144},
		{Gain4096, 4.096},
		{Gain2048, 2.048},
		{Gain1024, 1.024},
		{Gain0512, 0.512},
		{Gain0256, 0.256},
	}
	for _, tt := range tests {
		t.Run(tt.gain.String(), func(t *testing.T) {
			assert.Equal(t, tt.fsr, FullScaleRange(tt.gain))
			assert.InDelta(t, tt.fsr, VoltsPerCount(tt.gain)*32767, 1e-12)
		})
	}
}

func TestCapability_Apply(t *testing.T) {
	cfg := Config{Status: OpStart, Mux: MuxAIN2, Gain: Gain0512, Mode: ModeSingleShot, Rate: Rate250,
		CompMode: CompWindow, Polarity: CompActiveHigh, Latch: CompLatching, Queue: CompQueueAfter1}

	assert.Equal(t, cfg, ADS1115.Apply(cfg))

	got := ADS1114.Apply(cfg)
	assert.Equal(t, MuxAIN0AIN1, got.Mux)
	assert.Equal(t, Gain0512, got.Gain)
	assert.Equal(t, CompWindow, got.CompMode)

	got = ADS1113.Apply(cfg)
	assert.Equal(t, MuxAIN0AIN1, got.Mux)
	assert.Equal(t, Gain2048, got.Gain)
	assert.Equal(t, CompQueueDisable, got.Queue)
	assert.Equal(t, CompNonLatching, got.Latch)
	assert.Equal(t, Rate250, got.Rate)

	_, err := CapabilityByName("ads1116")
	assert.Error(t, err)
	c, err := CapabilityByName("ads1113")
	require.NoError(t, err)
	assert.Equal(t, ADS1113, c)
}
