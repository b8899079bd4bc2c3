package sht3x

import "meshsense-go/x/mathx"

// Reading is the compact decoded form of one measurement: sign and magnitude
// of the temperature split at two decimals, plus whole-percent humidity.
type Reading struct {
	Negative bool
	TempInt  uint8 // whole degrees of |T|
	TempDec  uint8 // hundredths of |T|, 0..99
	HumInt   uint8 // whole %RH, fraction discarded
}

// Bytes returns the 4-byte wire layout [sign, tInt, tDec, hInt].
func (r Reading) Bytes() [4]byte {
	var sign byte
	if r.Negative {
		sign = 1
	}
	return [4]byte{sign, r.TempInt, r.TempDec, r.HumInt}
}

// CentiCelsius returns the signed temperature in hundredths of °C.
func (r Reading) CentiCelsius() int32 {
	c := int32(r.TempInt)*100 + int32(r.TempDec)
	if r.Negative {
		return -c
	}
	return c
}

// ReadingFromBytes is the inverse of Bytes.
func ReadingFromBytes(b [4]byte) Reading {
	return Reading{Negative: b[0] != 0, TempInt: b[1], TempDec: b[2], HumInt: b[3]}
}

// CentiCelsius converts a raw temperature word: -45.00 .. 130.00 °C.
// Truncating integer division, per the datasheet formula
// T = -45 + 175 * ST / 65535.
func CentiCelsius(st uint16) int32 {
	return -4500 + (int32(st)*17500)/0xFFFF
}

// CentiRH converts a raw humidity word: 0 .. 100.00 %RH.
func CentiRH(srh uint16) int32 {
	return (int32(srh) * 10000) / 0xFFFF
}

// Decode validates both words of f and converts them. On a checksum mismatch
// in either word no reading is produced.
func Decode(f Frame) (Reading, error) {
	if CRC8(f[0:2]) != f[2] {
		return Reading{}, ErrChecksum
	}
	if CRC8(f[3:5]) != f[5] {
		return Reading{}, ErrChecksum
	}

	c := CentiCelsius(f.RawTemp())
	mag := mathx.Abs(c)
	return Reading{
		Negative: c < 0,
		TempInt:  uint8(mag / 100),
		TempDec:  uint8(mag % 100),
		HumInt:   uint8(mathx.Clamp(CentiRH(f.RawHumidity())/100, 0, 100)),
	}, nil
}

// EncodeFrame builds a CRC-correct frame from raw words. Used by simulators
// and tests.
func EncodeFrame(st, srh uint16) Frame {
	f := Frame{byte(st >> 8), byte(st), 0, byte(srh >> 8), byte(srh), 0}
	f[2] = CRC8(f[0:2])
	f[5] = CRC8(f[3:5])
	return f
}
