package acquire

import (
	"time"

	"meshsense-go/drivers/sht3x"
	"meshsense-go/mesh"
	"meshsense-go/platform"
	"meshsense-go/services/sched"
)

// Event bits. Values match the node firmware's task events.
const (
	EvTrigger       sched.Events = 0x0001
	EvDataReceive   sched.Events = 0x0002
	EvResetPullDown sched.Events = 0x0004
	EvResetPullUp   sched.Events = 0x0008
)

// Defaults.
const (
	DefaultResetDelay     = 300 * time.Millisecond  // pull-down -> pull-up
	DefaultTriggerDelay   = 300 * time.Millisecond  // pull-up -> trigger
	DefaultDataReadyDelay = 3000 * time.Millisecond // trigger -> read
	DefaultSampleDelay    = 500 * time.Millisecond  // read -> next trigger
)

type Config struct {
	ID      string // topic token, e.g. "sht30"
	Bus     platform.BusConfig
	Address uint16

	ResetDelay     time.Duration
	TriggerDelay   time.Duration
	DataReadyDelay time.Duration
	SampleDelay    time.Duration

	Opcode  mesh.Opcode
	Group   mesh.Addr
	Element uint8
	Ack     bool
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = "sht30"
	}
	c.Bus = c.Bus.WithDefaults()
	if c.Address == 0 {
		c.Address = sht3x.Address
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = DefaultResetDelay
	}
	if c.TriggerDelay <= 0 {
		c.TriggerDelay = DefaultTriggerDelay
	}
	if c.DataReadyDelay <= 0 {
		c.DataReadyDelay = DefaultDataReadyDelay
	}
	if c.SampleDelay <= 0 {
		c.SampleDelay = DefaultSampleDelay
	}
	if c.Opcode == 0 {
		c.Opcode = mesh.OpStatus
	}
	if c.Group == 0 {
		c.Group = mesh.GroupDefault
	}
	return c
}

// Phase is what the task is waiting for.
type Phase uint8

const (
	PhaseIdle       Phase = iota // before Init
	PhaseResetLow                // line low, pull-up pending
	PhaseResetHigh               // line high, trigger pending
	PhaseConverting              // command sent, read pending
	PhaseSampleWait              // cycle done, next trigger pending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResetLow:
		return "reset_low"
	case PhaseResetHigh:
		return "reset_high"
	case PhaseConverting:
		return "converting"
	case PhaseSampleWait:
		return "sample_wait"
	}
	return "unknown"
}

// Stats counts cycle outcomes since New.
type Stats struct {
	Resets      uint32
	Triggers    uint32
	OpenErrors  uint32
	WriteErrors uint32
	Timeouts    uint32
	ReadErrors  uint32
	Checksum    uint32
	Readings    uint32
	Unchanged   uint32
	Published   uint32
	SendErrors  uint32
}
