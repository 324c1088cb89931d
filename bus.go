package afe

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBusBusy        = errors.New("I2C engine is busy (command not completed)")
	ErrTimeout        = errors.New("I2C transaction timed out")
	ErrInvalidAddress = errors.New("invalid 7-bit I2C address")
	ErrShortTransfer  = errors.New("I2C transfer count mismatch")
)

// BusID identifies one of the two independent I2C controllers.
type BusID uint8

const (
	Bus0 BusID = iota
	Bus1
)

func (id BusID) Valid() bool {
	return id <= Bus1
}

func (id BusID) String() string {
	return fmt.Sprintf("i2c%d", id)
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// Transactor is implemented by buses able to issue a write followed by a
// repeated-start read without releasing the bus in between.
type Transactor interface {
	Tx(ctx context.Context, address byte, w, r []byte) error
}
