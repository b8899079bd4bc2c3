package acquire

import (
	"meshsense-go/bus"
	"meshsense-go/drivers/sht3x"
	"meshsense-go/errcode"
	"meshsense-go/types"
)

// Topic tokens under sensor/<id>/...
const (
	TopicSensor = "sensor"
	TopicValue  = "value"
	TopicStatus = "status"
	TopicEvent  = "event"
	TopicInfo   = "info"
)

func ValueTopic(id string) bus.Topic  { return bus.T(TopicSensor, id, TopicValue) }
func StatusTopic(id string) bus.Topic { return bus.T(TopicSensor, id, TopicStatus) }
func InfoTopic(id string) bus.Topic   { return bus.T(TopicSensor, id, TopicInfo) }

func EventTopic(id string, o types.Outcome) bus.Topic {
	return bus.T(TopicSensor, id, TopicEvent, string(o))
}

func (t *Task) ts() int64 { return t.now().UnixMilli() }

func (t *Task) info() {
	if t.conn == nil {
		return
	}
	in := types.Info{
		SchemaVersion: 1,
		Driver:        "sht3x",
		Detail:        types.SensorInfo{Sensor: "sht30", Addr: t.cfg.Address, Bus: t.cfg.Bus.ID},
	}
	t.conn.Publish(t.conn.NewMessage(InfoTopic(t.cfg.ID), in, true))
}

func (t *Task) value(r sht3x.Reading, published bool) {
	if t.conn == nil {
		return
	}
	v := types.EnvValue{
		CentiC:    int16(r.CentiCelsius()),
		RH:        r.HumInt,
		Raw:       r.Bytes(),
		Seq:       t.seq,
		Published: published,
		TS:        t.ts(),
	}
	t.conn.Publish(t.conn.NewMessage(ValueTopic(t.cfg.ID), v, true))
}

func (t *Task) status(l types.Link, code errcode.Code) {
	if t.conn == nil {
		return
	}
	st := types.CapabilityStatus{Link: l, TS: t.ts(), Error: string(code)}
	t.conn.Publish(t.conn.NewMessage(StatusTopic(t.cfg.ID), st, true))
}

func (t *Task) event(o types.Outcome, err error) {
	if t.conn == nil {
		return
	}
	ev := types.CycleEvent{Outcome: o, TS: t.ts()}
	if err != nil {
		ev.Error = err.Error()
	}
	t.conn.Publish(t.conn.NewMessage(EventTopic(t.cfg.ID, o), ev, false))
}
