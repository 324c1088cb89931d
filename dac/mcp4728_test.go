package dac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/afetest"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint16(4095), Clamp(5000))
	assert.Equal(t, uint16(100), Clamp(100))
	assert.Equal(t, uint16(4095), Clamp(4095))
	assert.Equal(t, uint16(4095), Clamp(0xffff))
}

func TestFrame(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ChannelConfig
		data      uint16
		immediate bool
		expected  [3]byte
	}{
		{
			name:      "channel A defaults",
			cfg:       ChannelConfig{Channel: ChannelA},
			data:      0x0123,
			immediate: true,
			expected:  [3]byte{0x40, 0x01, 0x23},
		},
		{
			name:      "clamped",
			cfg:       ChannelConfig{Channel: ChannelB},
			data:      5000,
			immediate: true,
			expected:  [3]byte{0x42, 0x0f, 0xff},
		},
		{
			name:      "internal reference, gain 2, 500k pull-down",
			cfg:       ChannelConfig{Channel: ChannelD, PowerDown: PowerDown500K, Gain: GainX2, Vref: VrefInternal},
			data:      0x0800,
			immediate: true,
			expected:  [3]byte{0x46, 0xf8, 0x00},
		},
		{
			name:      "deferred update",
			cfg:       ChannelConfig{Channel: ChannelC, PowerDown: PowerDown1K},
			data:      1,
			immediate: false,
			expected:  [3]byte{0x45, 0x20, 0x01},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Frame(tt.cfg, tt.data, tt.immediate)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, frame)
		})
	}

	_, err := Frame(ChannelConfig{Channel: NotAChannel}, 1, true)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestMCP4728_WriteChannel(t *testing.T) {
	bus := &afetest.MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x61), []byte{0x40, 0x8f, 0xff}).Return(nil).Once()
	d := New(afe.NewTransport(afe.Bus0, bus), WithSubAddress(1))

	cfg := ChannelConfig{Channel: ChannelA, Vref: VrefInternal}
	require.NoError(t, d.WriteChannel(context.Background(), cfg, 5000))
	assert.Equal(t, uint16(4095), d.Last(ChannelA))
	bus.AssertExpectations(t)
}

func TestMCP4728_WriteChannels(t *testing.T) {
	bus := &afetest.MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x60), []byte{0x40, 0x00, 0x10, 0x46, 0x00, 0x20}).Return(nil).Once()
	d := New(afe.NewTransport(afe.Bus1, bus))

	err := d.WriteChannels(context.Background(),
		Write{Config: ChannelConfig{Channel: ChannelA}, Data: 0x10},
		Write{Config: ChannelConfig{Channel: ChannelD}, Data: 0x20},
	)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x20), d.Last(ChannelD))
	assert.NoError(t, d.WriteChannels(context.Background()))
	bus.AssertExpectations(t)
}

func TestMCP4728_WriteFailure(t *testing.T) {
	bus := &afetest.MockI2CBus{}
	nack := errors.New("nack")
	bus.On("WriteToAddr", mock.Anything, byte(0x60), mock.Anything).Return(nack)
	d := New(afe.NewTransport(afe.Bus0, bus), WithName("grid"))

	err := d.WriteChannel(context.Background(), ChannelConfig{Channel: ChannelB}, 10)
	assert.ErrorIs(t, err, nack)
	assert.Zero(t, d.Last(ChannelB), "failed write must not update the shadow value")

	err = d.WriteChannel(context.Background(), ChannelConfig{Channel: NotAChannel}, 10)
	assert.ErrorIs(t, err, ErrInvalidChannel)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 1)
}

func TestCountsFor(t *testing.T) {
	internal := ChannelConfig{Vref: VrefInternal}
	double := ChannelConfig{Vref: VrefInternal, Gain: GainX2}
	supply := ChannelConfig{Vref: VrefVDD}
	vdd := 5 * physic.Volt

	assert.Equal(t, uint16(2048), CountsFor(1024*physic.MilliVolt, internal, vdd))
	assert.Equal(t, uint16(2048), CountsFor(2048*physic.MilliVolt, double, vdd))
	assert.Equal(t, uint16(4095), CountsFor(3*physic.Volt, internal, vdd))
	assert.Equal(t, uint16(2048), CountsFor(2500*physic.MilliVolt, supply, vdd))
	assert.Equal(t, uint16(0), CountsFor(-physic.Volt, supply, vdd))
	assert.Equal(t, uint16(0), CountsFor(physic.Volt, supply, 0))
}

func TestOutput(t *testing.T) {
	bus := afetest.NewFakeBus()
	sink := &recorder{}
	bus.Attach(BaseAddress, sink)
	out := &Output{
		Name:   "focus",
		DAC:    New(afe.NewTransport(afe.Bus0, bus)),
		Config: ChannelConfig{Channel: ChannelD, Vref: VrefInternal},
	}
	require.NoError(t, out.SetVoltage(context.Background(), 512*physic.MilliVolt))
	assert.Equal(t, uint16(1024), out.Counts())
	assert.Equal(t, 512*physic.MilliVolt, out.Voltage())
	assert.Equal(t, []byte{0x46, 0x84, 0x00}, sink.last)
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("c")
	require.NoError(t, err)
	assert.Equal(t, ChannelC, ch)
	assert.Equal(t, "C", ch.String())
	_, err = ParseChannel("E")
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

type recorder struct {
	last []byte
}

func (r *recorder) Write(data []byte) error {
	r.last = append([]byte(nil), data...)
	return nil
}

func (r *recorder) Read(data []byte) error {
	return nil
}
