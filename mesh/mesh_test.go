package mesh

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"meshsense-go/bus"
	"meshsense-go/drivers/sht3x"
	"meshsense-go/errcode"
)

func TestEncodeStatus_SensorLayout(t *testing.T) {
	r := sht3x.Reading{TempInt: 25, TempDec: 1, HumInt: 50}
	got := SensorStatus(1, r)
	want := []byte{0x01, 0x00, 0x04, 0x00, 25, 1, 50}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus([]byte{0x07, 0x00, 0x04, 1, 3, 25, 40})
	if err != nil {
		t.Fatal(err)
	}
	if st.TID != 7 || st.Type != StateSensor {
		t.Fatalf("status = %+v", st)
	}
	r, err := SensorReading(st)
	if err != nil {
		t.Fatal(err)
	}
	if r != (sht3x.Reading{Negative: true, TempInt: 3, TempDec: 25, HumInt: 40}) {
		t.Fatalf("reading = %+v", r)
	}

	if _, err := ParseStatus([]byte{1, 2}); errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("short: err = %v", err)
	}
	onoff := Status{TID: 1, Type: StateOnOff, Params: []byte{1}}
	if _, err := SensorReading(onoff); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("onoff: err = %v", err)
	}
	trunc := Status{Type: StateSensor, Params: []byte{0, 1}}
	if _, err := SensorReading(trunc); errcode.Of(err) != errcode.InvalidPayload {
		t.Fatalf("truncated: err = %v", err)
	}
}

func TestSeqWindow(t *testing.T) {
	type step struct {
		tid  uint8
		want bool
	}
	cases := []struct {
		name  string
		steps []step
	}{
		{"in order", []step{{1, true}, {2, true}, {3, true}}},
		{"duplicate", []step{{5, true}, {5, false}, {6, true}, {6, false}}},
		{"late but unseen", []step{{1, true}, {3, true}, {2, true}, {2, false}}},
		{"wrap", []step{{254, true}, {255, true}, {0, true}, {1, true}, {255, false}}},
		{"gap beyond window", []step{{1, true}, {40, true}, {30, true}, {30, false}}},
		{"restart", []step{{200, true}, {1, true}, {2, true}, {200, true}}},
	}
	for _, tc := range cases {
		var w SeqWindow
		for i, s := range tc.steps {
			if got := w.Accept(s.tid); got != s.want {
				t.Fatalf("%s: step %d tid %d: got %v, want %v", tc.name, i, s.tid, got, s.want)
			}
		}
	}
}

func TestSeqWindow_Reset(t *testing.T) {
	var w SeqWindow
	w.Accept(9)
	w.Reset()
	if _, ok := w.Last(); ok {
		t.Fatal("still valid after reset")
	}
	if !w.Accept(9) {
		t.Fatal("rejected after reset")
	}
}

func TestBusPublisher(t *testing.T) {
	b := bus.NewBus(4)
	sub := b.NewConnection("mon").Subscribe(bus.T(TopicMesh, bus.WildOne, bus.WildOne))
	p := NewBusPublisher(b.NewConnection("node"))

	payload := []byte{1, 0, 4, 0, 25, 1, 50}
	if err := p.PublishRaw(OpStatus, GroupDefault, 0, payload, false); err != nil {
		t.Fatal(err)
	}
	payload[0] = 0xFF // publisher must have copied

	select {
	case m := <-sub.Channel():
		f := m.Payload.(Frame)
		if f.Opcode != OpStatus || f.Dst != GroupDefault || f.Payload[0] != 1 {
			t.Fatalf("frame = %+v", f)
		}
		if m.Topic.At(1) != "0001" || m.Topic.At(2) != "00d38888" {
			t.Fatalf("topic = %v", m.Topic)
		}
		if m.Retained {
			t.Fatal("frame retained")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no frame")
	}
}

func TestParseTopic(t *testing.T) {
	dst, op, err := ParseTopic("mesh", "mesh/0001/00d38888")
	if err != nil || dst != GroupDefault || op != OpStatus {
		t.Fatalf("got %v %v %v", dst, op, err)
	}
	for _, bad := range []string{"other/0001/00d38888", "mesh/0001", "mesh/zz/00d38888", "mesh/0001/00d38888/x"} {
		if _, _, err := ParseTopic("mesh", bad); errcode.Of(err) != errcode.InvalidTopic {
			t.Errorf("%q: err = %v", bad, err)
		}
	}
}

// ---- fake paho client ----

type fakeToken struct {
	err  error
	hang bool
}

func (f *fakeToken) Wait() bool                     { return !f.hang }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return !f.hang }
func (f *fakeToken) Error() error                   { return f.err }

func (f *fakeToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

type pub struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu    sync.Mutex
	open  bool
	err   error
	hang  bool
	calls []pub
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, pub{topic, qos, payload.([]byte)})
	return &fakeToken{err: c.err, hang: c.hang}
}

func TestMQTTPublisher_Publishes(t *testing.T) {
	c := &fakeClient{open: true}
	p := NewMQTTPublisher(c, "site/mesh/", time.Second, BreakerSettings{})

	if err := p.PublishRaw(OpStatus, GroupDefault, 0, []byte{1, 0, 4}, false); err != nil {
		t.Fatal(err)
	}
	if len(c.calls) != 1 {
		t.Fatalf("calls = %d", len(c.calls))
	}
	if c.calls[0].topic != "site/mesh/0001/00d38888" || c.calls[0].qos != 0 {
		t.Fatalf("call = %+v", c.calls[0])
	}
	if err := p.PublishRaw(OpStatus, GroupDefault, 0, nil, true); err != nil || c.calls[1].qos != 1 {
		t.Fatalf("ack publish: err=%v qos=%d", err, c.calls[1].qos)
	}
}

func TestMQTTPublisher_ErrorsAndBreaker(t *testing.T) {
	c := &fakeClient{open: true, err: errors.New("refused")}
	p := NewMQTTPublisher(c, "mesh", time.Second, BreakerSettings{Failures: 2, Open: time.Hour})

	for i := 0; i < 2; i++ {
		if err := p.PublishRaw(OpStatus, GroupDefault, 0, nil, false); errcode.Of(err) != errcode.PublishFailed {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	err := p.PublishRaw(OpStatus, GroupDefault, 0, nil, false)
	if errcode.Of(err) != errcode.CircuitOpen {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if len(c.calls) != 2 {
		t.Fatalf("open breaker still reached broker: %d calls", len(c.calls))
	}
}

func TestMQTTPublisher_NotConnectedAndTimeout(t *testing.T) {
	c := &fakeClient{}
	p := NewMQTTPublisher(c, "mesh", time.Millisecond, BreakerSettings{Failures: 10})
	if err := p.PublishRaw(OpStatus, GroupDefault, 0, nil, false); errcode.Of(err) != errcode.NotConnected {
		t.Fatalf("err = %v", err)
	}
	c.open, c.hang = true, true
	if err := p.PublishRaw(OpStatus, GroupDefault, 0, nil, false); !errcode.IsTimeout(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestDecode(t *testing.T) {
	rx, err := Decode("mesh", "mesh/0001/00d38888", []byte{3, 0x00, 0x04, 0, 20, 50, 60})
	if err != nil {
		t.Fatal(err)
	}
	if rx.Status.TID != 3 || rx.Opcode != OpStatus {
		t.Fatalf("rx = %+v", rx)
	}
	if _, err := Decode("mesh", "mesh/0001/00d38888", []byte{3}); err == nil {
		t.Fatal("short payload accepted")
	}
}
