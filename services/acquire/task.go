// Package acquire runs the SHT3x acquisition cycle: reset the sensor line,
// trigger a measurement, read and validate the frame after the conversion
// time, and publish the reading to the mesh group when it differs from the
// last one. A bus timeout restarts the cycle from the line reset.
package acquire

import (
	"sync"
	"time"

	"meshsense-go/bus"
	"meshsense-go/drivers/sht3x"
	"meshsense-go/errcode"
	"meshsense-go/mesh"
	"meshsense-go/platform"
	"meshsense-go/services/sched"
	"meshsense-go/types"
	"meshsense-go/x/logx"
)

type Deps struct {
	Sched     sched.Scheduler
	Buses     platform.BusOpener
	Reset     platform.Pin
	Publisher mesh.Publisher

	Conn *bus.Connection  // optional telemetry
	Now  func() time.Time // optional clock for telemetry timestamps
}

// Task owns one sensor on one bus. All state changes happen inside
// ProcessEvent, which the scheduler calls from a single goroutine.
type Task struct {
	cfg   Config
	sched sched.Scheduler
	buses platform.BusOpener
	reset platform.Pin
	pub   mesh.Publisher
	conn  *bus.Connection
	now   func() time.Time
	log   *logx.Logger

	mu       sync.Mutex
	dev      *sht3x.Device
	baseline sht3x.Reading
	seq      uint8
	phase    Phase
	stats    Stats
}

func New(cfg Config, d Deps) (*Task, error) {
	if d.Sched == nil || d.Buses == nil || d.Reset == nil || d.Publisher == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "acquire.new", Msg: "scheduler, bus opener, reset pin and publisher are required"}
	}
	cfg = cfg.withDefaults()
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Task{
		cfg:   cfg,
		sched: d.Sched,
		buses: d.Buses,
		reset: d.Reset,
		pub:   d.Publisher,
		conn:  d.Conn,
		now:   d.Now,
		log:   logx.New("acquire/" + cfg.ID),
	}, nil
}

// Config returns the effective configuration.
func (t *Task) Config() Config { return t.cfg }

// Init powers the sensor (reset line high) and posts the first trigger.
func (t *Task) Init() error {
	if err := t.reset.ConfigureOutput(true); err != nil {
		return errcode.Wrap(errcode.UnknownPin, "acquire.init", err)
	}
	t.mu.Lock()
	t.phase = PhaseResetHigh
	t.mu.Unlock()
	t.log.Infof("reset line P%d high, bus %s sda=%d scl=%d %s", t.reset.Number(),
		t.cfg.Bus.ID, t.cfg.Bus.SDA, t.cfg.Bus.SCL, t.cfg.Bus.Clock)
	t.info()
	t.sched.SetEvent(EvTrigger)
	return nil
}

// ProcessEvent handles a delivered event mask. Phases run in the order
// pull-down, pull-up, trigger, receive; every delivered bit is consumed.
func (t *Task) ProcessEvent(ev sched.Events) sched.Events {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ev&EvResetPullDown != 0 {
		t.pullDown()
	}
	if ev&EvResetPullUp != 0 {
		t.pullUp()
	}
	if ev&EvTrigger != 0 {
		t.trigger()
	}
	if ev&EvDataReceive != 0 {
		t.receive()
	}
	return 0
}

func (t *Task) pullDown() {
	t.stats.Resets++
	t.reset.Set(false)
	t.phase = PhaseResetLow
	t.event(types.OutcomeReset, nil)
	t.sched.ArmTimer(EvResetPullUp, t.cfg.ResetDelay)
}

func (t *Task) pullUp() {
	t.reset.Set(true)
	t.phase = PhaseResetHigh
	t.sched.ArmTimer(EvTrigger, t.cfg.TriggerDelay)
}

// trigger re-initialises the bus and starts a conversion. Failures are
// only recorded: the read that follows decides how to recover.
func (t *Task) trigger() {
	t.stats.Triggers++
	t.phase = PhaseConverting
	defer t.sched.ArmTimer(EvDataReceive, t.cfg.DataReadyDelay)

	// The opener releases the previous handle.
	t.dev = nil
	h, err := t.buses.Open(t.cfg.Bus)
	if err != nil {
		t.stats.OpenErrors++
		t.log.Errorf("open %s: %v", t.cfg.Bus.ID, err)
		return
	}
	d := sht3x.New(h)
	d.Address = t.cfg.Address
	t.dev = &d
	if err := t.dev.Trigger(); err != nil {
		t.stats.WriteErrors++
		t.log.Errorf("trigger: %v", err)
	}
}

func (t *Task) receive() {
	var f sht3x.Frame
	err := errcode.Wrap(errcode.BusError, "acquire.read", errNoHandle)
	if t.dev != nil {
		err = t.dev.ReadFrame(&f)
	}
	if errcode.IsTimeout(err) {
		t.stats.Timeouts++
		t.log.Errorf("read timeout, reset sensor")
		t.status(types.LinkDown, errcode.BusTimeout)
		t.event(types.OutcomeTimeout, err)
		t.sched.SetEvent(EvResetPullDown)
		return
	}

	t.phase = PhaseSampleWait
	defer t.sched.ArmTimer(EvTrigger, t.cfg.SampleDelay)

	if err != nil {
		t.stats.ReadErrors++
		t.log.Errorf("read: %v", err)
		t.status(types.LinkDegraded, errcode.MapDriverErr(err))
		t.event(types.OutcomeBusError, err)
		return
	}
	r, err := sht3x.Decode(f)
	if err != nil {
		t.stats.Checksum++
		t.log.Errorf("frame % X: %v", f[:], err)
		t.status(types.LinkDegraded, errcode.Checksum)
		t.event(types.OutcomeChecksum, err)
		return
	}
	t.stats.Readings++
	t.status(types.LinkUp, "")
	t.decide(r)
}

// decide publishes r when it differs from the baseline. The baseline always
// becomes r, whether or not the send succeeded.
func (t *Task) decide(r sht3x.Reading) {
	published := false
	if r != t.baseline {
		t.seq++
		payload := mesh.SensorStatus(t.seq, r)
		if err := t.pub.PublishRaw(t.cfg.Opcode, t.cfg.Group, t.cfg.Element, payload, t.cfg.Ack); err != nil {
			t.stats.SendErrors++
			t.log.Errorf("publish tid %d: %v", t.seq, err)
			t.event(types.OutcomeSendError, err)
		} else {
			t.stats.Published++
			published = true
			t.event(types.OutcomePublished, nil)
		}
	} else {
		t.stats.Unchanged++
		t.event(types.OutcomeUnchanged, nil)
	}
	t.baseline = r
	t.log.Infof("%s %d.%02d C %d%%RH tid=%d sent=%v", sign(r), r.TempInt, r.TempDec, r.HumInt, t.seq, published)
	t.value(r, published)
}

func sign(r sht3x.Reading) string {
	if r.Negative {
		return "-"
	}
	return "+"
}

// Baseline returns the last decoded reading.
func (t *Task) Baseline() sht3x.Reading {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseline
}

// Seq returns the tid of the most recent publish attempt.
func (t *Task) Seq() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

func (t *Task) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Task) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
