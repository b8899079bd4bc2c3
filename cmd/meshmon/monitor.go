package main

import (
	"context"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"meshsense-go/mesh"
	"meshsense-go/x/logx"
	"meshsense-go/x/mathx"
)

// pointWriter is the part of api.WriteAPIBlocking the monitor uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Monitor decodes sensor status frames, drops repeated tids per
// destination and forwards the rest to an optional sink.
type Monitor struct {
	sink        pointWriter
	measurement string
	now         func() time.Time
	log         *logx.Logger

	mu      sync.Mutex
	windows map[mesh.Addr]*mesh.SeqWindow
	stats   monitorStats
}

type monitorStats struct {
	Received   uint32
	Duplicates uint32
	Ignored    uint32
	Written    uint32
	WriteErrs  uint32
}

func NewMonitor(sink pointWriter) *Monitor {
	return &Monitor{
		sink:        sink,
		measurement: "meshsense",
		now:         time.Now,
		log:         logx.New("meshmon"),
		windows:     map[mesh.Addr]*mesh.SeqWindow{},
	}
}

func (m *Monitor) window(dst mesh.Addr) *mesh.SeqWindow {
	w := m.windows[dst]
	if w == nil {
		w = &mesh.SeqWindow{}
		m.windows[dst] = w
	}
	return w
}

// Handle processes one received frame. It reports whether the frame carried
// a new sensor reading.
func (m *Monitor) Handle(ctx context.Context, rx mesh.Received) bool {
	m.mu.Lock()
	m.stats.Received++
	r, err := mesh.SensorReading(rx.Status)
	if err != nil {
		m.stats.Ignored++
		m.mu.Unlock()
		m.log.Infof("%s tid=%d type=%04x ignored: %v", rx.Src, rx.Status.TID, uint16(rx.Status.Type), err)
		return false
	}
	if !m.window(rx.Dst).Accept(rx.Status.TID) {
		m.stats.Duplicates++
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	centi := r.CentiCelsius()
	m.log.Infof("group %s tid=%d %d.%02d C %d%%RH", rx.Dst, rx.Status.TID, centi/100, mathx.Abs(centi%100), r.HumInt)
	if m.sink == nil {
		return true
	}
	p := influxdb2.NewPoint(m.measurement,
		map[string]string{
			"group":  rx.Dst.String(),
			"opcode": rx.Opcode.String(),
		},
		map[string]interface{}{
			"temperature_c": float64(centi) / 100,
			"humidity_pct":  int64(r.HumInt),
			"tid":           int64(rx.Status.TID),
		},
		m.now())
	err = m.sink.WritePoint(ctx, p)
	m.mu.Lock()
	if err != nil {
		m.stats.WriteErrs++
	} else {
		m.stats.Written++
	}
	m.mu.Unlock()
	if err != nil {
		m.log.Errorf("influx write: %v", err)
	}
	return true
}

func (m *Monitor) Stats() monitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (s monitorStats) String() string {
	return "received=" + strconv.Itoa(int(s.Received)) +
		" duplicates=" + strconv.Itoa(int(s.Duplicates)) +
		" ignored=" + strconv.Itoa(int(s.Ignored)) +
		" written=" + strconv.Itoa(int(s.Written)) +
		" write_errors=" + strconv.Itoa(int(s.WriteErrs))
}
