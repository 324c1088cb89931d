package eeprom

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// Page map of the instrument identification memory.
const (
	PageCompany    PageID = 0
	PageProduct    PageID = 1
	PagePartSerial PageID = 2
	PageVersion    PageID = 3
	// control data for each supply occupies two consecutive pages from here
	PageControlData PageID = 30
	PageSignature   PageID = 127
)

const (
	partNumberSize   = 11
	serialNumberSize = 17
)

type ProductInfo struct {
	Company      string `yaml:"company"`
	Product      string `yaml:"product"`
	PartNumber   string `yaml:"part_number"`
	SerialNumber string `yaml:"serial_number"`
	Major        uint8  `yaml:"major"`
	Minor        uint8  `yaml:"minor"`
	Build        uint16 `yaml:"build"`
}

// DefaultProductInfo is written to blank devices.
func DefaultProductInfo() ProductInfo {
	return ProductInfo{
		Company:      "Creighton Scientific, Inc.",
		Product:      "This is the greatest product!",
		PartNumber:   "Part#00000",
		SerialNumber: "Serial#000000000",
	}
}

// cString stores s NUL terminated in a field of size bytes.
func cString(s string, size int) []byte {
	b := make([]byte, size)
	copy(b[:size-1], s)
	return b
}

func fromCString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (p ProductInfo) versionPage() []byte {
	b := []byte{p.Major, p.Minor, 0, 0}
	binary.LittleEndian.PutUint16(b[2:], p.Build)
	return b
}

func (p ProductInfo) partSerialPage() []byte {
	return append(cString(p.PartNumber, partNumberSize), cString(p.SerialNumber, serialNumberSize)...)
}

// Supply identifies the power supply a control data record belongs to.
type Supply uint8

const (
	SupplyGrid1 Supply = iota
	SupplyGrid2
	SupplyGrid3
	SupplyHeater
	SupplyHighVoltage
	supplyCount
)

var supplyNames = [...]string{"grid1", "grid2", "grid3", "heater", "hv"}

func (s Supply) String() string {
	if s >= supplyCount {
		return fmt.Sprintf("supply(%d)", uint8(s))
	}
	return supplyNames[s]
}

func ParseSupply(name string) (Supply, error) {
	for i, n := range supplyNames {
		if n == name {
			return Supply(i), nil
		}
	}
	return 0, fmt.Errorf("unknown supply %q", name)
}

// Pages returns the two pages holding the control data of s.
func (s Supply) Pages() (PageID, PageID) {
	first := PageControlData + 2*PageID(s)
	return first, first + 1
}

// ControlDataPage1 holds the readback and setpoint calibration of a supply.
type ControlDataPage1 struct {
	VoltageReadSlope       float32 `yaml:"voltage_read_slope"`
	VoltageReadOffset      float32 `yaml:"voltage_read_offset"`
	VoltageReadCoeff       float32 `yaml:"voltage_read_coeff"`
	CurrentReadSlope       float32 `yaml:"current_read_slope"`
	CurrentReadOffset      float32 `yaml:"current_read_offset"`
	CurrentReadV2C         float32 `yaml:"current_read_v2c"`
	CurrentReadOutputScale float32 `yaml:"current_read_output_scale"`
	VoltageWriteSlope      float32 `yaml:"voltage_write_slope"`
}

// ControlDataPage2 holds the rest of the setpoint calibration and the
// regulator tuning of a supply.
type ControlDataPage2 struct {
	VoltageWriteOffset float32 `yaml:"voltage_write_offset"`
	VoltageWriteCoeff  uint16  `yaml:"voltage_write_coeff"`
	Kp                 float32 `yaml:"kp"`
	Ki                 float32 `yaml:"ki"`
	Kd                 float32 `yaml:"kd"`
	MinControl         float32 `yaml:"min_control"`
	MaxControl         float32 `yaml:"max_control"`
	WindowSize         uint8   `yaml:"window_size"`
}

func (p ControlDataPage1) MarshalBinary() ([]byte, error) {
	return marshalPage(&p)
}

func (p *ControlDataPage1) UnmarshalBinary(data []byte) error {
	return unmarshalPage(data, p)
}

func (p ControlDataPage2) MarshalBinary() ([]byte, error) {
	return marshalPage(&p)
}

func (p *ControlDataPage2) UnmarshalBinary(data []byte) error {
	return unmarshalPage(data, p)
}

// records are packed little endian with no padding
func marshalPage(v any) ([]byte, error) {
	buf := make([]byte, binary.Size(v))
	if _, err := binary.Encode(buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return buf, nil
}

func unmarshalPage(data []byte, v any) error {
	_, err := binary.Decode(data, binary.LittleEndian, v)
	return err
}

type ControlData struct {
	Page1 ControlDataPage1 `yaml:"page1"`
	Page2 ControlDataPage2 `yaml:"page2"`
}

func (s *Store) ReadControlData(ctx context.Context, supply Supply) (ControlData, error) {
	var cd ControlData
	if supply >= supplyCount {
		return cd, fmt.Errorf("%s: %w", supply, ErrPageRange)
	}
	first, second := supply.Pages()
	page, err := s.ReadPage(ctx, first)
	if err != nil {
		return cd, err
	}
	if err := cd.Page1.UnmarshalBinary(page); err != nil {
		return cd, fmt.Errorf("%s: %s page 1: %w", s.name, supply, err)
	}
	page, err = s.ReadPage(ctx, second)
	if err != nil {
		return cd, err
	}
	if err := cd.Page2.UnmarshalBinary(page); err != nil {
		return cd, fmt.Errorf("%s: %s page 2: %w", s.name, supply, err)
	}
	return cd, nil
}

func (s *Store) WriteControlData(ctx context.Context, supply Supply, cd ControlData) error {
	if supply >= supplyCount {
		return fmt.Errorf("%s: %w", supply, ErrPageRange)
	}
	first, second := supply.Pages()
	p1, err := cd.Page1.MarshalBinary()
	if err != nil {
		return err
	}
	p2, err := cd.Page2.MarshalBinary()
	if err != nil {
		return err
	}
	return errors.Join(s.WritePage(ctx, first, p1), s.WritePage(ctx, second, p2))
}

// ReadProductInfo decodes the identification pages.
func (s *Store) ReadProductInfo(ctx context.Context) (ProductInfo, error) {
	var info ProductInfo
	b, err := s.Read(ctx, PageAddress(PageCompany), int(PageVersion+1)*PageSize)
	if err != nil {
		return info, err
	}
	page := func(id PageID) []byte {
		return b[PageAddress(id) : PageAddress(id)+PageSize]
	}
	info.Company = fromCString(page(PageCompany))
	info.Product = fromCString(page(PageProduct))
	ps := page(PagePartSerial)
	info.PartNumber = fromCString(ps[:partNumberSize])
	info.SerialNumber = fromCString(ps[partNumberSize : partNumberSize+serialNumberSize])
	v := page(PageVersion)
	info.Major, info.Minor = v[0], v[1]
	info.Build = binary.LittleEndian.Uint16(v[2:])
	return info, nil
}

// pageContent returns the initial content of id, or false for pages that
// are left as they are.
func (s *Store) pageContent(id PageID) ([]byte, bool) {
	switch {
	case id == PageCompany:
		return cString(s.info.Company, PageSize), true
	case id == PageProduct:
		return cString(s.info.Product, PageSize), true
	case id == PagePartSerial:
		return s.info.partSerialPage(), true
	case id == PageVersion:
		return s.info.versionPage(), true
	case id >= PageControlData && id < PageControlData+2*PageID(supplyCount):
		// blank records; calibration is written separately
		return make([]byte, PageSize), true
	case id == PageSignature:
		sig := ComputeSignature(s.buildDate)
		return sig[:], true
	}
	return nil, false
}
