// Package platform provides the two-wire bus and GPIO line the acquisition
// task drives: periph.io on Linux hosts and a simulator for everything else.
package platform

import (
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"meshsense-go/errcode"
)

// Defaults for the single sensor bus.
const (
	DefaultBusID    = "i2c0"
	DefaultSDA      = 2
	DefaultSCL      = 3
	DefaultClock    = 100 * physic.KiloHertz
	DefaultResetPin = 16
)

// BusConfig names a bus and the lines it runs on.
type BusConfig struct {
	ID    string
	SDA   int
	SCL   int
	Clock physic.Frequency
}

// WithDefaults fills zero fields.
func (c BusConfig) WithDefaults() BusConfig {
	if c.ID == "" {
		c.ID = DefaultBusID
	}
	if c.SDA == 0 && c.SCL == 0 {
		c.SDA, c.SCL = DefaultSDA, DefaultSCL
	}
	if c.Clock == 0 {
		c.Clock = DefaultClock
	}
	return c
}

// BusOpener (re)initialises a bus and returns a fresh handle. A previously
// returned handle must not be used after the next Open.
type BusOpener interface {
	Open(cfg BusConfig) (drivers.I2C, error)
}

// Pin is a single output line.
type Pin interface {
	ConfigureOutput(initial bool) error
	Set(level bool)
	Number() int
}

type txer interface {
	Tx(addr uint16, w, r []byte) error
}

// readTimeoutBus maps failed reads to errcode.BusTimeout. Linux i2c-dev
// reports an absent or busy sensor as a NACK (EREMOTEIO, ENXIO, ETIMEDOUT)
// with nothing that distinguishes it from a slow one.
type readTimeoutBus struct {
	id string
	b  txer
}

func (t readTimeoutBus) Tx(addr uint16, w, r []byte) error {
	err := t.b.Tx(addr, w, r)
	switch {
	case err == nil:
		return nil
	case len(w) == 0 && len(r) > 0:
		return errcode.Wrap(errcode.BusTimeout, t.id, err)
	}
	return errcode.Wrap(errcode.MapDriverErr(err), t.id, err)
}
