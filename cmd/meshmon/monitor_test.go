package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"meshsense-go/drivers/sht3x"
	"meshsense-go/mesh"
	"meshsense-go/x/logx"
)

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, p ...*write.Point) error {
	f.points = append(f.points, p...)
	return f.err
}

func sensorRx(t *testing.T, dst mesh.Addr, tid uint8, r sht3x.Reading) mesh.Received {
	t.Helper()
	rx, err := mesh.Decode("mesh", "mesh/"+dst.String()+"/00d38888", mesh.SensorStatus(tid, r))
	if err != nil {
		t.Fatal(err)
	}
	return rx
}

func TestMonitor_WritesNewReadings(t *testing.T) {
	w := &fakeWriter{}
	m := NewMonitor(w)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	room := sht3x.Reading{TempInt: 25, TempDec: 1, HumInt: 50}
	if !m.Handle(ctx, sensorRx(t, mesh.GroupDefault, 1, room)) {
		t.Fatal("first frame rejected")
	}
	if m.Handle(ctx, sensorRx(t, mesh.GroupDefault, 1, room)) {
		t.Fatal("duplicate accepted")
	}
	// Same tid on another group is independent.
	if !m.Handle(ctx, sensorRx(t, 0xC001, 1, room)) {
		t.Fatal("other group rejected")
	}

	if len(w.points) != 2 {
		t.Fatalf("points = %d", len(w.points))
	}
	line := write.PointToLineProtocol(w.points[0], time.Second)
	for _, want := range []string{"meshsense,", "group=0001", "opcode=status", "temperature_c=25.01", "humidity_pct=50i", "tid=1i", " 1700000000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q lacks %q", line, want)
		}
	}
	st := m.Stats()
	if st.Received != 3 || st.Duplicates != 1 || st.Written != 2 {
		t.Fatalf("stats %s", st)
	}
}

func TestMonitor_IgnoresOtherStatesAndCountsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("unauthorized")}
	m := NewMonitor(w)
	ctx := context.Background()

	onoff, err := mesh.Decode("mesh", "mesh/0001/00d38888", mesh.EncodeStatus(4, mesh.StateOnOff, []byte{1}))
	if err != nil {
		t.Fatal(err)
	}
	if m.Handle(ctx, onoff) {
		t.Fatal("onoff treated as reading")
	}
	neg := sht3x.Reading{Negative: true, TempInt: 1, TempDec: 25, HumInt: 10}
	if !m.Handle(ctx, sensorRx(t, mesh.GroupDefault, 5, neg)) {
		t.Fatal("reading rejected")
	}
	if !strings.Contains(write.PointToLineProtocol(w.points[0], time.Second), "temperature_c=-1.25") {
		t.Fatalf("line %q", write.PointToLineProtocol(w.points[0], time.Second))
	}
	st := m.Stats()
	if st.Ignored != 1 || st.WriteErrs != 1 || st.Written != 0 {
		t.Fatalf("stats %s", st)
	}
}

func TestMonitor_NoSink(t *testing.T) {
	m := NewMonitor(nil)
	if !m.Handle(context.Background(), sensorRx(t, mesh.GroupDefault, 9, sht3x.Reading{HumInt: 1})) {
		t.Fatal("rejected")
	}
}
