package mesh

import (
	"encoding/binary"

	"meshsense-go/drivers/sht3x"
	"meshsense-go/errcode"
)

// StatusHeaderLen is tid plus the little-endian state type.
const StatusHeaderLen = 3

// Status is a decoded vendor status message.
type Status struct {
	TID    uint8
	Type   StateType
	Params []byte
}

// EncodeStatus lays out [tid, type lo, type hi, params...].
func EncodeStatus(tid uint8, st StateType, params []byte) []byte {
	b := make([]byte, StatusHeaderLen+len(params))
	b[0] = tid
	binary.LittleEndian.PutUint16(b[1:3], uint16(st))
	copy(b[StatusHeaderLen:], params)
	return b
}

// ParseStatus decodes b. Params alias b.
func ParseStatus(b []byte) (Status, error) {
	if len(b) < StatusHeaderLen {
		return Status{}, errcode.Wrap(errcode.InvalidPayload, "mesh.parse", errShort)
	}
	return Status{
		TID:    b[0],
		Type:   StateType(binary.LittleEndian.Uint16(b[1:3])),
		Params: b[StatusHeaderLen:],
	}, nil
}

// SensorStatus builds the temperature/humidity status for r.
func SensorStatus(tid uint8, r sht3x.Reading) []byte {
	p := r.Bytes()
	return EncodeStatus(tid, StateSensor, p[:])
}

// SensorReading extracts the reading carried by a sensor status.
func SensorReading(s Status) (sht3x.Reading, error) {
	if s.Type != StateSensor {
		return sht3x.Reading{}, errcode.Wrap(errcode.Unsupported, "mesh.sensor", errNotSensor)
	}
	if len(s.Params) < 4 {
		return sht3x.Reading{}, errcode.Wrap(errcode.InvalidPayload, "mesh.sensor", errShort)
	}
	var b [4]byte
	copy(b[:], s.Params)
	return sht3x.ReadingFromBytes(b), nil
}
