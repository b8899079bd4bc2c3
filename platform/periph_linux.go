//go:build linux

package platform

import (
	"strconv"
	"strings"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"meshsense-go/errcode"
	"meshsense-go/x/logx"
)

var log = logx.New("platform")

var (
	hostOnce sync.Once
	hostErr  error
)

// InitHost loads the periph.io host drivers once.
func InitHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = errcode.Wrap(errcode.Unsupported, "periph.init", err)
		}
	})
	return hostErr
}

// PeriphBuses opens i2c-dev buses through periph.io. Each Open closes the
// handle returned by the previous one.
type PeriphBuses struct {
	mu  sync.Mutex
	cur i2c.BusCloser
}

func NewPeriphBuses() (*PeriphBuses, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}
	return &PeriphBuses{}, nil
}

func (p *PeriphBuses) Open(cfg BusConfig) (drivers.I2C, error) {
	cfg = cfg.WithDefaults()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		if err := p.cur.Close(); err != nil {
			log.Errorf("close %s: %v", p.cur, err)
		}
		p.cur = nil
	}
	b, err := i2creg.Open(periphBusName(cfg.ID))
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownBus, cfg.ID, err)
	}
	// Adapters without a speed control keep their boot setting.
	if err := b.SetSpeed(cfg.Clock); err != nil {
		log.Infof("%s: clock %s not applied: %v", cfg.ID, cfg.Clock, err)
	}
	p.cur = b
	return readTimeoutBus{id: cfg.ID, b: b}, nil
}

// Close releases the current handle.
func (p *PeriphBuses) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return nil
	}
	err := p.cur.Close()
	p.cur = nil
	return err
}

// periphBusName turns "i2c1" into the "/dev/i2c-1" form i2creg expects;
// other names pass through.
func periphBusName(id string) string {
	if n, ok := strings.CutPrefix(id, "i2c"); ok {
		if _, err := strconv.Atoi(n); err == nil {
			return "/dev/i2c-" + n
		}
	}
	return id
}

// PeriphPin drives a GPIO line by its SoC number.
type PeriphPin struct {
	n   int
	pin gpio.PinIO
}

func NewPeriphPin(n int) (*PeriphPin, error) {
	if err := InitHost(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName("GPIO" + strconv.Itoa(n))
	if p == nil {
		return nil, errcode.Wrap(errcode.UnknownPin, "gpio", errNoPin(n))
	}
	return &PeriphPin{n: n, pin: p}, nil
}

func (p *PeriphPin) ConfigureOutput(initial bool) error {
	return p.pin.Out(gpio.Level(initial))
}

func (p *PeriphPin) Set(level bool) {
	if err := p.pin.Out(gpio.Level(level)); err != nil {
		log.Errorf("GPIO%d: %v", p.n, err)
	}
}

func (p *PeriphPin) Number() int { return p.n }
