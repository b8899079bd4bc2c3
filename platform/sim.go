package platform

import (
	"sync"

	"tinygo.org/x/drivers"

	"meshsense-go/drivers/sht3x"
	"meshsense-go/errcode"
)

// Fault is a one-shot failure injected into the simulated sensor.
type Fault uint8

const (
	FaultNone    Fault = iota
	FaultTimeout       // next read NACKs
	FaultCorrupt       // next read returns a frame with a bad humidity CRC
	FaultNoAck         // next write NACKs
)

// Sample is one raw measurement the simulator will report.
type Sample struct {
	ST, SRH uint16
}

// SimSHT3x answers SHT3x commands on a simulated bus. Samples are served in
// order and the last one repeats; Gen, when set, replaces them.
type SimSHT3x struct {
	mu       sync.Mutex
	Address  uint16
	Samples  []Sample
	Gen      func(n int) Sample
	n        int
	pending  bool // measurement ready to read
	statusRd bool // next read returns the status word
	faults   []Fault
	status   uint16
	Triggers int
	Reads    int
}

func NewSimSHT3x(samples ...Sample) *SimSHT3x {
	return &SimSHT3x{Address: sht3x.Address, Samples: samples}
}

// Inject queues f for the next matching transfer.
func (s *SimSHT3x) Inject(f Fault) {
	s.mu.Lock()
	s.faults = append(s.faults, f)
	s.mu.Unlock()
}

func (s *SimSHT3x) takeFault(want ...Fault) bool {
	if len(s.faults) == 0 {
		return false
	}
	for _, w := range want {
		if s.faults[0] == w {
			s.faults = s.faults[1:]
			return true
		}
	}
	return false
}

func (s *SimSHT3x) next() Sample {
	defer func() { s.n++ }()
	if s.Gen != nil {
		return s.Gen(s.n)
	}
	switch {
	case len(s.Samples) == 0:
		return Sample{ST: 0x666A, SRH: 0x8000}
	case s.n < len(s.Samples):
		return s.Samples[s.n]
	}
	return s.Samples[len(s.Samples)-1]
}

func (s *SimSHT3x) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr != s.Address {
		return errcode.Wrap(errcode.BusTimeout, "sim", errNack)
	}
	if len(w) > 0 {
		if s.takeFault(FaultNoAck) {
			return errcode.Wrap(errcode.BusError, "sim", errNack)
		}
		if len(w) < 2 {
			return errcode.Wrap(errcode.InvalidParams, "sim", errShortCmd)
		}
		s.command(uint16(w[0])<<8 | uint16(w[1]))
		return nil
	}
	if len(r) == 0 {
		return nil
	}
	if s.statusRd {
		s.statusRd = false
		if len(r) >= 3 {
			r[0], r[1] = byte(s.status>>8), byte(s.status)
			r[2] = sht3x.CRC8(r[:2])
		}
		return nil
	}
	s.Reads++
	if !s.pending || s.takeFault(FaultTimeout) {
		s.pending = false
		return errcode.Wrap(errcode.BusTimeout, "sim", errNack)
	}
	s.pending = false
	smp := s.next()
	f := sht3x.EncodeFrame(smp.ST, smp.SRH)
	if s.takeFault(FaultCorrupt) {
		f[5] ^= 0xFF
	}
	copy(r, f[:])
	return nil
}

func (s *SimSHT3x) command(cmd uint16) {
	s.statusRd = false
	switch cmd {
	case sht3x.CmdMeasHighRep, sht3x.CmdMeasMedRep, sht3x.CmdMeasLowRep,
		sht3x.CmdMeasHighRepStretch, sht3x.CmdMeasMedRepStretch, sht3x.CmdMeasLowRepStretch:
		s.Triggers++
		s.pending = true
	case sht3x.CmdSoftReset:
		s.pending = false
		s.status = 0
	case sht3x.CmdClearStatus:
		s.status = 0
	case sht3x.CmdHeaterOn:
		s.status |= 1 << 13
	case sht3x.CmdHeaterOff:
		s.status &^= 1 << 13
	case sht3x.CmdReadStatus:
		s.statusRd = true
	}
}

// SimBus is a BusOpener whose every handle reaches the same simulated
// sensor. A handle from an earlier Open reports a bus error.
type SimBus struct {
	mu     sync.Mutex
	Sensor *SimSHT3x
	gen    int
	Opens  []BusConfig
	Fail   error // returned by the next Open, then cleared
}

func NewSimBus(sensor *SimSHT3x) *SimBus {
	return &SimBus{Sensor: sensor}
}

func (b *SimBus) Open(cfg BusConfig) (drivers.I2C, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.Fail; err != nil {
		b.Fail = nil
		return nil, err
	}
	b.gen++
	b.Opens = append(b.Opens, cfg.WithDefaults())
	return &simHandle{bus: b, gen: b.gen}, nil
}

type simHandle struct {
	bus *SimBus
	gen int
}

func (h *simHandle) Tx(addr uint16, w, r []byte) error {
	h.bus.mu.Lock()
	stale := h.gen != h.bus.gen
	h.bus.mu.Unlock()
	if stale {
		return errcode.Wrap(errcode.BusError, "sim", errClosed)
	}
	return h.bus.Sensor.Tx(addr, w, r)
}

// SimPin records every level it is driven to.
type SimPin struct {
	mu     sync.Mutex
	N      int
	out    bool
	level  bool
	Levels []bool
}

func (p *SimPin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.out, p.level = true, initial
	p.Levels = append(p.Levels, initial)
	p.mu.Unlock()
	return nil
}

func (p *SimPin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.Levels = append(p.Levels, level)
	p.mu.Unlock()
}

func (p *SimPin) Number() int { return p.N }

// Level returns the current level and whether the line is an output.
func (p *SimPin) Level() (level, output bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, p.out
}
