// Package mesh is the boundary to the vendor mesh model: opcode and state
// tables, the status message codec and the publishers that carry raw
// payloads to a group address.
package mesh

import "fmt"

// Opcode is a 3-byte vendor opcode held in the low bits of a uint32.
type Opcode uint32

// Vendor model opcodes (company 0x8888).
const (
	OpGet          Opcode = 0x00D08888
	OpSet          Opcode = 0x00D18888
	OpSetUnack     Opcode = 0x00D28888
	OpStatus       Opcode = 0x00D38888
	OpIndication   Opcode = 0x00D48888
	OpConfirmation Opcode = 0x00D58888
	OpWriteCmd     Opcode = 0x00E08888
	OpNotify       Opcode = 0x00E18888
)

// Model identifiers.
const (
	ModelServer uint32 = 0x00008888
	ModelClient uint32 = 0x00018888
)

func (o Opcode) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpSetUnack:
		return "set_unack"
	case OpStatus:
		return "status"
	case OpIndication:
		return "indication"
	case OpConfirmation:
		return "confirmation"
	case OpWriteCmd:
		return "write_cmd"
	case OpNotify:
		return "notify"
	}
	return fmt.Sprintf("op_%06x", uint32(o))
}

// StateType is the 16-bit attribute carried after the tid in a status.
type StateType uint16

const (
	StateNotify    StateType = 0xFFFE
	StateHeartbeat StateType = 0x0000
	StateOnOff     StateType = 0x0100
	StateLightness StateType = 0x0200
	StateRGB       StateType = 0x0300
	StateSensor    StateType = 0x0400
	StateIRBody    StateType = 0x0500
	StateReset     StateType = 0x0900
)

// Addr is a 16-bit mesh address (unicast or group).
type Addr uint16

// GroupDefault is the group the sensor node publishes to.
const GroupDefault Addr = 0x0001

func (a Addr) String() string { return fmt.Sprintf("%04x", uint16(a)) }

// Publisher sends a raw payload under opcode to dst from the given element.
type Publisher interface {
	PublishRaw(op Opcode, dst Addr, element uint8, payload []byte, ack bool) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(op Opcode, dst Addr, element uint8, payload []byte, ack bool) error

func (f PublisherFunc) PublishRaw(op Opcode, dst Addr, element uint8, payload []byte, ack bool) error {
	return f(op, dst, element, payload, ack)
}
