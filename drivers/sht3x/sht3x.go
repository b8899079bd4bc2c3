// Package sht3x provides a driver for the Sensirion SHT3x temperature/humidity
// sensor family (SHT30/31/35). It exposes the single-shot measurement in two
// phases so the caller can schedule the wait itself:
//
//	d.Trigger()                // start a high-repeatability measurement
//	err := d.ReadFrame(&f)     // later: fetch the raw 6-byte frame
//	r, err := Decode(f)        // CRC check and integer conversion
//
// The driver is allocation-free on the hot path and never uses floating point:
// temperature is handled in hundredths of °C and humidity in hundredths of %RH.
package sht3x

import (
	"errors"

	"tinygo.org/x/drivers"
)

// I2C addresses (ADDR pin low / high).
const (
	Address    = 0x44
	AddressAlt = 0x45
)

// Commands (16-bit, transmitted MSB first).
const (
	CmdMeasHighRep        = 0x2400
	CmdMeasMedRep         = 0x240B
	CmdMeasLowRep         = 0x2416
	CmdMeasHighRepStretch = 0x2C06
	CmdMeasMedRepStretch  = 0x2C0D
	CmdMeasLowRepStretch  = 0x2C10

	CmdReadStatus  = 0xF32D
	CmdClearStatus = 0x3041
	CmdSoftReset   = 0x30A2
	CmdHeaterOn    = 0x306D
	CmdHeaterOff   = 0x3066
)

// FrameLen is the size of a measurement frame.
const FrameLen = 6

// Errors returned by the driver.
var (
	ErrChecksum = errors.New("sht3x: checksum mismatch")
)

// Frame is one raw measurement: [tMSB, tLSB, tCRC, hMSB, hLSB, hCRC].
type Frame [FrameLen]byte

// RawTemp returns the big-endian temperature word.
func (f *Frame) RawTemp() uint16 { return uint16(f[0])<<8 | uint16(f[1]) }

// RawHumidity returns the big-endian humidity word.
func (f *Frame) RawHumidity() uint16 { return uint16(f[3])<<8 | uint16(f[4]) }

// Device wraps an I2C connection to an SHT3x device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cmd [2]byte // reuse buffer to avoid allocations
}

// New creates a new SHT3x connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// WriteCommand sends a 16-bit command.
func (d *Device) WriteCommand(cmd uint16) error {
	d.cmd[0] = byte(cmd >> 8)
	d.cmd[1] = byte(cmd)
	return d.bus.Tx(d.Address, d.cmd[:], nil)
}

// Trigger starts a single-shot, high-repeatability measurement without clock
// stretching. The result must be fetched with ReadFrame once converted.
func (d *Device) Trigger() error {
	return d.WriteCommand(CmdMeasHighRep)
}

// ReadFrame reads a raw measurement frame. Transport errors are returned
// as-is so the caller can tell a bus timeout from other failures.
func (d *Device) ReadFrame(out *Frame) error {
	return d.bus.Tx(d.Address, nil, out[:])
}

// SoftReset issues a soft reset. Give the device ~2ms before the next command.
func (d *Device) SoftReset() error {
	return d.WriteCommand(CmdSoftReset)
}

// Heater switches the internal heater.
func (d *Device) Heater(on bool) error {
	if on {
		return d.WriteCommand(CmdHeaterOn)
	}
	return d.WriteCommand(CmdHeaterOff)
}

// Status reads the 16-bit status register.
func (d *Device) Status() (uint16, error) {
	if err := d.WriteCommand(CmdReadStatus); err != nil {
		return 0, err
	}
	var b [3]byte
	if err := d.bus.Tx(d.Address, nil, b[:]); err != nil {
		return 0, err
	}
	if CRC8(b[:2]) != b[2] {
		return 0, ErrChecksum
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// ClearStatus clears the alert and reset flags of the status register.
func (d *Device) ClearStatus() error {
	return d.WriteCommand(CmdClearStatus)
}

// CRC8 computes the Sensirion checksum: polynomial 0x31, init 0xFF, no
// reflection, no final XOR.
func CRC8(data []byte) uint8 {
	const poly = 0x31
	crc := uint8(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
