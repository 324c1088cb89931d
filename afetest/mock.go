// Package afetest provides bus doubles shared by the driver tests.
package afetest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockI2CBus is a testify mock of afe.I2CBus. ReadFromAddr expectations
// return the bytes to copy into the caller's buffer followed by the error:
//
//	bus.On("ReadFromAddr", mock.Anything, byte(0x48), mock.Anything).Return([]byte{0x85, 0x83}, nil)
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, append([]byte(nil), buffer...))
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTxBus adds a mocked repeated-start transaction to MockI2CBus.
type MockTxBus struct {
	MockI2CBus
}

func (m *MockTxBus) Tx(ctx context.Context, address byte, w, r []byte) error {
	args := m.Called(ctx, address, append([]byte(nil), w...), r)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(r) {
		copy(r, data)
	}
	return args.Error(1)
}

// Device simulates one addressable peripheral on a FakeBus.
type Device interface {
	Write(data []byte) error
	Read(data []byte) error
}

// FakeBus routes transactions to simulated devices by address. Addresses
// with no device behave like a NACK.
type FakeBus struct {
	mx      sync.Mutex
	devices map[byte]Device
	Writes  int
	Reads   int
}

func NewFakeBus() *FakeBus {
	return &FakeBus{devices: make(map[byte]Device)}
}

func (b *FakeBus) Attach(address byte, dev Device) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.devices[address] = dev
}

func (b *FakeBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.Writes++
	dev, ok := b.devices[address]
	if !ok {
		return ErrNack
	}
	return dev.Write(buffer)
}

func (b *FakeBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.Reads++
	dev, ok := b.devices[address]
	if !ok {
		return ErrNack
	}
	return dev.Read(buffer)
}

func (b *FakeBus) Release(ctx context.Context) error {
	return nil
}
