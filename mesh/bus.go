package mesh

import (
	"meshsense-go/bus"
)

// Frame is one raw model message as seen on the in-process bus.
type Frame struct {
	Opcode  Opcode `json:"opcode"`
	Dst     Addr   `json:"dst"`
	Element uint8  `json:"element"`
	Payload []byte `json:"payload"`
	Ack     bool   `json:"ack"`
}

// TopicMesh is the first token of every mesh topic.
const TopicMesh = "mesh"

// FrameTopic returns mesh/<dst>/<opcode> with both parts in hex.
func FrameTopic(dst Addr, op Opcode) bus.Topic {
	return bus.T(TopicMesh, dst.String(), opHex(op))
}

// BusPublisher hands frames to local subscribers (bridges, monitors, tests).
type BusPublisher struct {
	conn *bus.Connection
}

func NewBusPublisher(conn *bus.Connection) *BusPublisher {
	return &BusPublisher{conn: conn}
}

func (p *BusPublisher) PublishRaw(op Opcode, dst Addr, element uint8, payload []byte, ack bool) error {
	f := Frame{
		Opcode:  op,
		Dst:     dst,
		Element: element,
		Payload: append([]byte(nil), payload...),
		Ack:     ack,
	}
	p.conn.Publish(p.conn.NewMessage(FrameTopic(dst, op), f, false))
	return nil
}
