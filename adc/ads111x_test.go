package adc

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/afe"
	"github.com/mklimuk/afe/afetest"
)

// fakeADS simulates the register file of an ADS1115. A write with OS set
// starts a conversion which stays busy for busyPolls config reads.
type fakeADS struct {
	pointer    byte
	regs       [4]uint16
	converting bool
	busyPolls  int
	reportMux  *Mux
	writes     [][]byte
}

func (f *fakeADS) Write(data []byte) error {
	f.writes = append(f.writes, append([]byte(nil), data...))
	if len(data) == 0 {
		return nil
	}
	f.pointer = data[0] & 0x03
	if len(data) < 3 {
		return nil
	}
	v := binary.BigEndian.Uint16(data[1:])
	if f.pointer == byte(RegConfig) {
		f.converting = v>>osShift&1 == 1
		v &^= 1 << osShift
		if f.reportMux != nil {
			v = v&^(threeBits<<muxShift) | uint16(*f.reportMux)<<muxShift
		}
	}
	f.regs[f.pointer] = v
	return nil
}

func (f *fakeADS) Read(data []byte) error {
	v := f.regs[f.pointer]
	if f.pointer == byte(RegConfig) {
		if f.converting && f.busyPolls > 0 {
			f.busyPolls--
		} else {
			f.converting = false
			v |= 1 << osShift
		}
	}
	binary.BigEndian.PutUint16(data, v)
	return nil
}

func (f *fakeADS) configWrites() [][]byte {
	var out [][]byte
	for _, w := range f.writes {
		if len(w) == 3 && w[0] == byte(RegConfig) {
			out = append(out, w)
		}
	}
	return out
}

func newTestConverter(t *testing.T, dev *fakeADS, opts ...Opt) (*Converter, *afetest.FakeBus) {
	t.Helper()
	bus := afetest.NewFakeBus()
	bus.Attach(DefaultAddress, dev)
	tr := afe.NewTransport(afe.Bus0, bus, afe.WithTimeout(time.Second))
	return New(tr, opts...), bus
}

func TestConverter_Read(t *testing.T) {
	dev := &fakeADS{}
	dev.regs[RegConversion] = 0xFF38
	conv, _ := newTestConverter(t, dev)

	start := time.Now()
	require.NoError(t, conv.StartConversion(context.Background(), MuxAIN0, ModeSingleShot))
	assert.Equal(t, StateConverting, conv.State())
	assert.WithinDuration(t, start.Add(ConversionLatency(Rate860)), conv.Deadline(), 5*time.Millisecond)
	require.Len(t, dev.configWrites(), 1)
	assert.Equal(t, []byte{0x01, 0xC5, 0xE3}, dev.configWrites()[0])

	counts, err := conv.CompleteConversion(context.Background(), MuxAIN0)
	require.NoError(t, err)
	assert.Equal(t, int16(-200), counts)
	assert.Equal(t, StateReady, conv.State())
	assert.Equal(t, int16(-200), conv.LastCounts())
	assert.False(t, time.Now().Before(start.Add(ConversionLatency(Rate860))), "result collected before the deadline")

	counts, err = conv.Read(context.Background(), MuxAIN0)
	require.NoError(t, err)
	assert.Equal(t, int16(-200), counts)
}

func TestConverter_ChannelMismatch(t *testing.T) {
	reported := MuxAIN1
	dev := &fakeADS{reportMux: &reported}
	conv, _ := newTestConverter(t, dev)

	require.NoError(t, conv.StartConversion(context.Background(), MuxAIN0, ModeSingleShot))
	_, err := conv.CompleteConversion(context.Background(), MuxAIN0)
	assert.ErrorIs(t, err, ErrChannelMismatch)
	assert.Equal(t, StateError, conv.State())

	dev.reportMux = nil
	require.NoError(t, conv.StartConversion(context.Background(), MuxAIN0, ModeSingleShot), "error state must allow a new start")
}

func TestConverter_StillConverting(t *testing.T) {
	dev := &fakeADS{busyPolls: completeAttempts}
	dev.regs[RegConversion] = 1234
	conv, bus := newTestConverter(t, dev)

	require.NoError(t, conv.StartConversion(context.Background(), MuxAIN2, ModeSingleShot))
	reads := bus.Reads
	_, err := conv.CompleteConversion(context.Background(), MuxAIN2)
	assert.ErrorIs(t, err, ErrConversionPending)
	assert.Equal(t, completeAttempts, bus.Reads-reads, "device polled more than allowed")
	assert.Equal(t, StateConverting, conv.State())

	assert.ErrorIs(t, conv.StartConversion(context.Background(), MuxAIN3, ModeSingleShot), ErrConversionPending)
	assert.Len(t, dev.configWrites(), 1, "a refused start must not touch the device")

	counts, err := conv.CompleteConversion(context.Background(), MuxAIN2)
	require.NoError(t, err)
	assert.Equal(t, int16(1234), counts)
}

func TestConverter_CompleteWithoutStart(t *testing.T) {
	conv, bus := newTestConverter(t, &fakeADS{})
	_, err := conv.CompleteConversion(context.Background(), MuxAIN0)
	assert.ErrorIs(t, err, ErrNoConversion)
	assert.Zero(t, bus.Reads)
	assert.Zero(t, bus.Writes)
}

func TestConverter_CompleteCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rate = Rate8
	conv, _ := newTestConverter(t, &fakeADS{}, WithConfig(cfg))
	require.NoError(t, conv.StartConversion(context.Background(), MuxAIN0, ModeSingleShot))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := conv.CompleteConversion(ctx, MuxAIN0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateConverting, conv.State())
}

func TestConverter_IsDataReady(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rate = Rate475
	dev := &fakeADS{busyPolls: 1}
	conv, bus := newTestConverter(t, dev, WithConfig(cfg))

	ready, err := conv.IsDataReady(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, conv.StartConversion(context.Background(), MuxAIN1, ModeSingleShot))
	reads := bus.Reads
	ready, err = conv.IsDataReady(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, reads, bus.Reads, "device asked before the deadline")

	time.Sleep(time.Until(conv.Deadline()))
	ready, err = conv.IsDataReady(context.Background())
	require.NoError(t, err)
	assert.False(t, ready)
	ready, err = conv.IsDataReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestConverter_Capabilities(t *testing.T) {
	dev := &fakeADS{}
	conv, _ := newTestConverter(t, dev, WithCapability(ADS1113))

	require.NoError(t, conv.StartConversion(context.Background(), MuxAIN2, ModeSingleShot))
	writes := dev.configWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, MuxAIN0AIN1, Unpack(binary.BigEndian.Uint16(writes[0][1:])).Mux)
	_, err := conv.CompleteConversion(context.Background(), MuxAIN2)
	require.NoError(t, err)

	assert.ErrorIs(t, conv.SetThresholds(context.Background(), -100, 100), ErrUnsupported)
	_, err = conv.ReadRegister(context.Background(), RegHiThresh)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestConverter_Thresholds(t *testing.T) {
	dev := &fakeADS{}
	conv, _ := newTestConverter(t, dev)

	require.NoError(t, conv.SetThresholds(context.Background(), -100, 2000))
	assert.Equal(t, []byte{0x02, 0xFF, 0x9C}, dev.writes[0])
	assert.Equal(t, []byte{0x03, 0x07, 0xD0}, dev.writes[1])

	lo, hi, err := conv.Thresholds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(-100), lo)
	assert.Equal(t, int16(2000), hi)
}

func TestConverter_WriteConfig(t *testing.T) {
	dev := &fakeADS{}
	conv, _ := newTestConverter(t, dev)

	cfg := DefaultConfig()
	cfg.Gain = Gain4096
	cfg.Rate = Rate128
	require.NoError(t, conv.WriteConfig(context.Background(), cfg))
	assert.Equal(t, []byte{0x01, 0x03, 0x83}, dev.writes[0], "OS must not be set by a config write")
	assert.Equal(t, Gain4096, conv.Config().Gain)
	assert.InDelta(t, 4.096, conv.Volts(32767), 1e-9)
	assert.InDelta(t, 4.096, float64(conv.Potential(32767))/float64(physic.Volt), 1e-6)
}

func TestCached_ReadConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rate = Rate8
	dev := &fakeADS{}
	dev.regs[RegConversion] = 0x0100
	conv, bus := newTestConverter(t, dev, WithConfig(cfg))
	require.NoError(t, conv.StartContinuous(context.Background(), MuxAIN0))
	cached := NewCached(conv)

	counts, err := cached.ReadConversion(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int16(256), counts)
	reads := bus.Reads

	dev.regs[RegConversion] = 0x0200
	counts, err = cached.ReadConversion(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int16(256), counts, "fresh value must come from the cache")
	assert.Equal(t, reads, bus.Reads)

	counts, err = cached.ReadConversion(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int16(512), counts)
	assert.Equal(t, reads+1, bus.Reads)

	dev.regs[RegConversion] = 0x0300
	cached.Invalidate()
	counts, err = cached.ReadConversion(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int16(768), counts)
}

func TestConverter_MissingDevice(t *testing.T) {
	bus := afetest.NewFakeBus()
	conv := New(afe.NewTransport(afe.Bus1, bus), WithAddress(0x49))
	err := conv.StartConversion(context.Background(), MuxAIN0, ModeSingleShot)
	assert.ErrorIs(t, err, afetest.ErrNack)
	assert.Equal(t, StateError, conv.State())
	assert.Equal(t, "ADS1115@0x49", conv.Name())
}
