package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/afe"
)

// fakeHID answers every report with the next scripted response.
type fakeHID struct {
	requests  [][]byte
	responses [][]byte
	closed    int
}

func (f *fakeHID) Write(b []byte) (int, error) {
	f.requests = append(f.requests, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	if len(f.responses) == 0 {
		return copy(b, make([]byte, reportSize)), nil
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	return copy(b, res), nil
}

func (f *fakeHID) Close() error {
	f.closed++
	return nil
}

func report(bytes ...byte) []byte {
	r := make([]byte, reportSize)
	copy(r, bytes)
	return r
}

func newTestBridge(dev *fakeHID) *MCP2221 {
	return NewMCP2221(
		WithResponseWait(0),
		WithOpener(func(index int) (HIDDevice, error) { return dev, nil }),
	)
}

func TestMCP2221_WriteToAddr(t *testing.T) {
	dev := &fakeHID{responses: [][]byte{report(cmdWriteData, 0x00)}}
	bridge := newTestBridge(dev)

	err := bridge.WriteToAddr(context.Background(), 0x60, []byte{0x40, 0x0F, 0xFF})
	require.NoError(t, err)
	require.Len(t, dev.requests, 1)
	req := dev.requests[0]
	assert.Equal(t, []byte{cmdWriteData, 0x03, 0x00, 0xC0, 0x40, 0x0F, 0xFF}, req[:7])
	assert.Equal(t, 1, dev.closed)
}

func TestMCP2221_WriteBusy(t *testing.T) {
	dev := &fakeHID{responses: [][]byte{report(cmdWriteData, statusBusy)}}
	bridge := newTestBridge(dev)

	err := bridge.WriteToAddr(context.Background(), 0x50, []byte{0x00})
	assert.ErrorIs(t, err, afe.ErrBusBusy)
}

func TestMCP2221_ReadFromAddr(t *testing.T) {
	dev := &fakeHID{responses: [][]byte{
		report(cmdReadData, 0x00),
		report(cmdGetI2CData, 0x00, 0x00, 0x02, 0x85, 0x83),
	}}
	bridge := newTestBridge(dev)

	buf := make([]byte, 2)
	err := bridge.ReadFromAddr(context.Background(), 0x48, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x85, 0x83}, buf)
	require.Len(t, dev.requests, 2)
	assert.Equal(t, []byte{cmdReadData, 0x02, 0x00, 0x91}, dev.requests[0][:4])
	assert.Equal(t, cmdGetI2CData, dev.requests[1][0])
}

func TestMCP2221_ReadSizeMismatch(t *testing.T) {
	dev := &fakeHID{responses: [][]byte{
		report(cmdReadData, 0x00),
		report(cmdGetI2CData, 0x00, 0x00, invalidDataSizeMarker),
	}}
	bridge := newTestBridge(dev)

	err := bridge.ReadFromAddr(context.Background(), 0x48, make([]byte, 2))
	assert.ErrorIs(t, err, afe.ErrShortTransfer)
}

func TestMCP2221_TxUsesRepeatedStart(t *testing.T) {
	dev := &fakeHID{responses: [][]byte{
		report(cmdWriteDataNoStop, 0x00),
		report(cmdReadRepeatedStart, 0x00),
		report(cmdGetI2CData, 0x00, 0x00, 0x02, 0x7F, 0xFF),
	}}
	bridge := newTestBridge(dev)

	r := make([]byte, 2)
	err := bridge.Tx(context.Background(), 0x48, []byte{0x00}, r)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7F, 0xFF}, r)
	require.Len(t, dev.requests, 3)
	assert.Equal(t, []byte{cmdWriteDataNoStop, 0x01, 0x00, 0x90, 0x00}, dev.requests[0][:5])
	assert.Equal(t, []byte{cmdReadRepeatedStart, 0x02, 0x00, 0x91}, dev.requests[1][:4])
}

func TestMCP2221_TransferTooLong(t *testing.T) {
	bridge := newTestBridge(&fakeHID{})
	err := bridge.WriteToAddr(context.Background(), 0x50, make([]byte, maxTransfer+1))
	assert.ErrorIs(t, err, ErrTransferTooLong)
}

func TestMCP2221_SetSpeed(t *testing.T) {
	tests := []struct {
		name    string
		hz      int
		accept  byte
		divider byte
		wantErr bool
	}{
		{name: "standard", hz: 100_000, accept: setSpeedAccepted, divider: 117},
		{name: "fast", hz: 400_000, accept: setSpeedAccepted, divider: 27},
		{name: "rejected", hz: 400_000, accept: 0x21, divider: 27, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeHID{responses: [][]byte{report(cmdStatusSetParams, 0x00, 0x00, tt.accept)}}
			bridge := newTestBridge(dev)
			err := bridge.SetSpeed(context.Background(), tt.hz)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCommandFailed)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.divider, dev.requests[0][4])
		})
	}
}

func TestMCP2221_Status(t *testing.T) {
	res := report(cmdStatusSetParams)
	res[9], res[10] = 0x22, 0x00
	res[11], res[12] = 0x20, 0x00
	res[13] = 4
	res[14] = 117
	res[15] = 9
	res[16], res[17] = 0xA0, 0x00
	res[25] = 1
	bridge := newTestBridge(&fakeHID{responses: [][]byte{res}})

	status, err := bridge.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &MCP2221Status{
		I2CDataBufferCounter:   4,
		I2CSpeedDivider:        117,
		I2CTimeout:             9,
		CurrentAddress:         "a000",
		LastWriteRequestedSize: 34,
		LastWriteSentSize:      32,
		ReadPending:            1,
	}, status)
}
