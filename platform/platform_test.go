package platform

import (
	"errors"
	"syscall"
	"testing"

	"meshsense-go/drivers/sht3x"
	"meshsense-go/errcode"
)

type stubTx struct{ err error }

func (s stubTx) Tx(uint16, []byte, []byte) error { return s.err }

func TestReadTimeoutBus_MapsReadFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		w, r []byte
		want errcode.Code
	}{
		{"ok", nil, nil, make([]byte, 6), errcode.OK},
		{"read nack", errors.New("remote i/o error"), nil, make([]byte, 6), errcode.BusTimeout},
		{"read io", errors.New("i/o error"), nil, make([]byte, 6), errcode.BusTimeout},
		{"write nack", errors.New("remote i/o error"), []byte{0x24, 0x00}, nil, errcode.BusError},
		{"write timeout", syscall.ETIMEDOUT, []byte{0x24, 0x00}, nil, errcode.BusTimeout},
	}
	for _, tc := range cases {
		b := readTimeoutBus{id: "i2c0", b: stubTx{tc.err}}
		if got := errcode.Of(b.Tx(sht3x.Address, tc.w, tc.r)); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestBusConfigDefaults(t *testing.T) {
	c := BusConfig{}.WithDefaults()
	if c.ID != "i2c0" || c.SDA != 2 || c.SCL != 3 || c.Clock != DefaultClock {
		t.Fatalf("defaults = %+v", c)
	}
	c = BusConfig{ID: "i2c1", SDA: 6, SCL: 7}.WithDefaults()
	if c.ID != "i2c1" || c.SDA != 6 || c.SCL != 7 {
		t.Fatalf("overrides lost: %+v", c)
	}
}

func TestSimSHT3x_MeasurementCycle(t *testing.T) {
	sim := NewSimSHT3x(Sample{0x666A, 0x8000}, Sample{0x0000, 0xFFFF})
	dev := sht3x.New(sim)

	var f sht3x.Frame
	if err := dev.ReadFrame(&f); !errcode.IsTimeout(err) {
		t.Fatalf("read before trigger: %v", err)
	}
	for i, want := range []sht3x.Reading{
		{TempInt: 25, TempDec: 1, HumInt: 50},
		{Negative: true, TempInt: 45, HumInt: 100},
		{Negative: true, TempInt: 45, HumInt: 100}, // last sample repeats
	} {
		if err := dev.Trigger(); err != nil {
			t.Fatal(err)
		}
		if err := dev.ReadFrame(&f); err != nil {
			t.Fatal(err)
		}
		r, err := sht3x.Decode(f)
		if err != nil || r != want {
			t.Fatalf("cycle %d: %+v %v", i, r, err)
		}
	}
	if sim.Triggers != 3 || sim.Reads != 4 {
		t.Fatalf("triggers=%d reads=%d", sim.Triggers, sim.Reads)
	}
}

func TestSimSHT3x_Faults(t *testing.T) {
	sim := NewSimSHT3x()
	dev := sht3x.New(sim)
	var f sht3x.Frame

	sim.Inject(FaultTimeout)
	_ = dev.Trigger()
	if err := dev.ReadFrame(&f); !errcode.IsTimeout(err) {
		t.Fatalf("timeout fault: %v", err)
	}

	sim.Inject(FaultCorrupt)
	_ = dev.Trigger()
	if err := dev.ReadFrame(&f); err != nil {
		t.Fatal(err)
	}
	if _, err := sht3x.Decode(f); !errors.Is(err, sht3x.ErrChecksum) {
		t.Fatalf("corrupt fault: %v", err)
	}

	sim.Inject(FaultNoAck)
	if err := dev.Trigger(); errcode.Of(err) != errcode.BusError {
		t.Fatalf("noack fault: %v", err)
	}

	other := sht3x.New(sim)
	other.Address = sht3x.AddressAlt
	if err := other.Trigger(); !errcode.IsTimeout(err) {
		t.Fatalf("wrong address: %v", err)
	}
}

func TestSimSHT3x_Status(t *testing.T) {
	sim := NewSimSHT3x()
	dev := sht3x.New(sim)
	if err := dev.Heater(true); err != nil {
		t.Fatal(err)
	}
	st, err := dev.Status()
	if err != nil || st != 1<<13 {
		t.Fatalf("status = %#x %v", st, err)
	}
	_ = dev.SoftReset()
	if st, _ := dev.Status(); st != 0 {
		t.Fatalf("status after reset = %#x", st)
	}
}

func TestSimBus_OpenInvalidatesPreviousHandle(t *testing.T) {
	sim := NewSimSHT3x()
	b := NewSimBus(sim)

	h1, err := b.Open(BusConfig{})
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := b.Open(BusConfig{ID: "i2c0"})
	if err := h1.Tx(sht3x.Address, []byte{0x24, 0x00}, nil); errcode.Of(err) != errcode.BusError {
		t.Fatalf("stale handle: %v", err)
	}
	if err := h2.Tx(sht3x.Address, []byte{0x24, 0x00}, nil); err != nil {
		t.Fatal(err)
	}
	if len(b.Opens) != 2 || b.Opens[0].Clock != DefaultClock {
		t.Fatalf("opens = %+v", b.Opens)
	}

	b.Fail = errcode.UnknownBus
	if _, err := b.Open(BusConfig{}); err != errcode.UnknownBus {
		t.Fatalf("fail: %v", err)
	}
	if _, err := b.Open(BusConfig{}); err != nil {
		t.Fatalf("fail not cleared: %v", err)
	}
}

func TestSimPin(t *testing.T) {
	p := &SimPin{N: DefaultResetPin}
	_ = p.ConfigureOutput(true)
	p.Set(false)
	p.Set(true)
	if lvl, out := p.Level(); !lvl || !out {
		t.Fatalf("level=%v output=%v", lvl, out)
	}
	if len(p.Levels) != 3 || p.Levels[1] {
		t.Fatalf("levels = %v", p.Levels)
	}
	if p.Number() != 16 {
		t.Fatal(p.Number())
	}
}
