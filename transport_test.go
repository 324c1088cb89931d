package afe

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/afe/afetest"
)

func TestTransport_Write(t *testing.T) {
	bus := new(afetest.MockI2CBus)
	tr := NewTransport(Bus0, bus)
	bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{0x01, 0x85, 0x83}).Return(nil).Once()

	n, err := tr.Write(context.Background(), 0x48, []byte{0x01, 0x85, 0x83}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	bus.AssertExpectations(t)
}

func TestTransport_InvalidAddress(t *testing.T) {
	bus := new(afetest.MockI2CBus)
	tr := NewTransport(Bus1, bus)

	_, err := tr.Write(context.Background(), 0x80, []byte{0x00}, false)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = tr.Read(context.Background(), 0xFF, make([]byte, 2), false)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransport_Timeout(t *testing.T) {
	bus := new(afetest.MockI2CBus)
	tr := NewTransport(Bus0, bus, WithTimeout(10*time.Millisecond))
	bus.On("ReadFromAddr", mock.Anything, byte(0x50), mock.Anything).
		Return([]byte{0xAA, 0xBB}, nil).WaitUntil(time.After(200 * time.Millisecond)).Once()

	buf := []byte{0x11, 0x22}
	start := time.Now()
	n, err := tr.Read(context.Background(), 0x50, buf, false)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	// a late completion must not leak into the caller's buffer
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, []byte{0x11, 0x22}, buf)
}

func TestTransport_HeldWriteUsesRepeatedStart(t *testing.T) {
	bus := new(afetest.MockTxBus)
	tr := NewTransport(Bus0, bus)
	bus.On("Tx", mock.Anything, byte(0x48), []byte{0x01}, mock.Anything).Return([]byte{0x85, 0x83}, nil).Once()

	ctx := context.Background()
	n, err := tr.Write(ctx, 0x48, []byte{0x01}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	buf := make([]byte, 2)
	n, err = tr.Read(ctx, 0x48, buf, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0x85, 0x83}, buf)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransport_HeldWriteWithoutTransactor(t *testing.T) {
	bus := new(afetest.MockI2CBus)
	tr := NewTransport(Bus0, bus)
	write := bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{0x00}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x48), mock.Anything).Return([]byte{0x7F, 0xFF}, nil).Once().NotBefore(write)

	ctx := context.Background()
	_, err := tr.Write(ctx, 0x48, []byte{0x00}, true)
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = tr.Read(ctx, 0x48, buf, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7F, 0xFF}, buf)
	bus.AssertExpectations(t)
}

func TestTransport_HeldWriteFlushedByOtherTransaction(t *testing.T) {
	bus := new(afetest.MockTxBus)
	tr := NewTransport(Bus0, bus)
	first := bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{0x01}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x60), []byte{0x40, 0x0F, 0xFF}).Return(nil).Once().NotBefore(first)

	ctx := context.Background()
	_, err := tr.Write(ctx, 0x48, []byte{0x01}, true)
	require.NoError(t, err)
	_, err = tr.Write(ctx, 0x60, []byte{0x40, 0x0F, 0xFF}, false)
	require.NoError(t, err)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "Tx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTransport_BusyReleasesBus(t *testing.T) {
	bus := new(afetest.MockI2CBus)
	tr := NewTransport(Bus1, bus)
	bus.On("WriteToAddr", mock.Anything, byte(0x50), mock.Anything).Return(ErrBusBusy).Once()
	bus.On("Release", mock.Anything).Return(nil).Once()

	n, err := tr.Write(context.Background(), 0x50, []byte{0x00, 0x00}, false)
	assert.ErrorIs(t, err, ErrBusBusy)
	assert.Equal(t, 0, n)
	bus.AssertExpectations(t)
}

func TestTransport_Probe(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		present bool
	}{
		{name: "acknowledged", present: true},
		{name: "no device", err: afetest.ErrNack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(afetest.MockI2CBus)
			tr := NewTransport(Bus0, bus)
			bus.On("WriteToAddr", mock.Anything, byte(0x50), []byte(nil)).Return(tt.err).Once()
			err := tr.Probe(context.Background(), 0x50)
			if tt.present {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, afetest.ErrNack))
			}
			bus.AssertExpectations(t)
		})
	}
}

// slowBus blocks every transfer while slow is set and records how many
// transfers overlap.
type slowBus struct {
	slow     atomic.Bool
	inflight atomic.Int32
	peak     atomic.Int32
}

func (b *slowBus) transfer() {
	n := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if b.slow.Load() {
		time.Sleep(50 * time.Millisecond)
	}
}

func (b *slowBus) WriteToAddr(_ context.Context, _ byte, _ []byte) error {
	b.transfer()
	return nil
}

func (b *slowBus) ReadFromAddr(_ context.Context, _ byte, _ []byte) error {
	b.transfer()
	return nil
}

func (b *slowBus) Release(context.Context) error {
	return nil
}

func TestTransport_TimeoutKeepsBusClaimed(t *testing.T) {
	bus := &slowBus{}
	bus.slow.Store(true)
	tr := NewTransport(Bus0, bus, WithTimeout(10*time.Millisecond))

	ctx := context.Background()
	for range 3 {
		_, err := tr.Write(ctx, 0x48, []byte{0x01}, false)
		assert.ErrorIs(t, err, ErrTimeout)
	}
	assert.EqualValues(t, 1, bus.peak.Load())

	time.Sleep(60 * time.Millisecond)
	bus.slow.Store(false)
	n, err := tr.Write(ctx, 0x48, []byte{0x01}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, bus.peak.Load())
}
