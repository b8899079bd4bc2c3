package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"meshsense-go/errcode"
	"meshsense-go/mesh"
	"meshsense-go/platform"
	"meshsense-go/services/acquire"
	"meshsense-go/x/mathx"
	"meshsense-go/x/timex"
)

// Config is the node configuration file.
type Config struct {
	Device    string    `yaml:"device"`
	Sensor    Sensor    `yaml:"sensor"`
	Timing    Timing    `yaml:"timing"`
	Mesh      Mesh      `yaml:"mesh"`
	Metrics   Metrics   `yaml:"metrics"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
	Influx    Influx    `yaml:"influx"`
	Log       Log       `yaml:"log"`
}

type Sensor struct {
	ID       string `yaml:"id"`
	Bus      string `yaml:"bus"`
	SDA      int    `yaml:"sda"`
	SCL      int    `yaml:"scl"`
	ClockHz  int64  `yaml:"clock_hz"`
	ResetPin int    `yaml:"reset_pin"`
	Address  uint16 `yaml:"address"`
}

// Timing in milliseconds; zero keeps the task default.
type Timing struct {
	ResetMs     uint32 `yaml:"reset_ms"`
	TriggerMs   uint32 `yaml:"trigger_ms"`
	DataReadyMs uint32 `yaml:"data_ready_ms"`
	SampleMs    uint32 `yaml:"sample_ms"`
}

type Mesh struct {
	Transport   string `yaml:"transport"` // "bus" or "mqtt"
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	Group       uint16 `yaml:"group"`
	Element     uint8  `yaml:"element"`
	Ack         bool   `yaml:"ack"`
}

type Metrics struct {
	Listen string `yaml:"listen"`
}

type Heartbeat struct {
	Interval int `yaml:"interval"` // seconds
}

// Influx is the time-series sink used by the mesh monitor.
type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type Log struct {
	Quiet bool `yaml:"quiet"`
}

const (
	TransportBus  = "bus"
	TransportMQTT = "mqtt"
)

// Default returns the compiled-in node configuration.
func Default() Config {
	return Config{
		Device: "sht30-node",
		Sensor: Sensor{
			ID:       "sht30",
			Bus:      platform.DefaultBusID,
			SDA:      platform.DefaultSDA,
			SCL:      platform.DefaultSCL,
			ClockHz:  int64(platform.DefaultClock / physic.Hertz),
			ResetPin: platform.DefaultResetPin,
			Address:  0x44,
		},
		Timing: Timing{
			ResetMs:     uint32(acquire.DefaultResetDelay / time.Millisecond),
			TriggerMs:   uint32(acquire.DefaultTriggerDelay / time.Millisecond),
			DataReadyMs: uint32(acquire.DefaultDataReadyDelay / time.Millisecond),
			SampleMs:    uint32(acquire.DefaultSampleDelay / time.Millisecond),
		},
		Mesh: Mesh{
			Transport:   TransportBus,
			Broker:      "tcp://localhost:1883",
			ClientID:    "sht30-node",
			TopicPrefix: "mesh",
			Group:       uint16(mesh.GroupDefault),
		},
		Metrics:   Metrics{Listen: ":9108"},
		Heartbeat: Heartbeat{Interval: 2},
	}
}

// Load reads a YAML file over the defaults. An empty path selects the
// embedded configuration for device.
func Load(path, device string) (Config, error) {
	var raw []byte
	if path == "" {
		b, ok := EmbeddedConfigLookup(device)
		if !ok {
			return Config{}, &errcode.E{C: errcode.InvalidParams, Op: "config.load", Msg: "no embedded config for device " + device}
		}
		raw = b
	} else {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errcode.Wrap(errcode.InvalidParams, "config.load", err)
		}
		raw = b
	}
	return Parse(raw)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidPayload, "config.parse", err)
	}
	c.Mesh.Transport = strings.ToLower(strings.TrimSpace(c.Mesh.Transport))
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func invalid(msg string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "config.validate", Msg: msg}
}

func (c *Config) Validate() error {
	switch {
	case c.Sensor.ID == "":
		return invalid("sensor.id is empty")
	case !mathx.Between(c.Sensor.Address, 0x01, 0x7F):
		return invalid("sensor.address outside the 7-bit range")
	case c.Sensor.ClockHz < 0:
		return invalid("sensor.clock_hz is negative")
	case c.Mesh.Group == 0:
		return invalid("mesh.group is zero")
	case c.Heartbeat.Interval < 0:
		return invalid("heartbeat.interval is negative")
	}
	switch c.Mesh.Transport {
	case TransportBus:
	case TransportMQTT:
		if c.Mesh.Broker == "" {
			return invalid("mesh.broker is required for mqtt")
		}
	default:
		return invalid("mesh.transport must be bus or mqtt")
	}
	return nil
}

// Acquire maps the file onto the acquisition task configuration.
func (c *Config) Acquire() acquire.Config {
	return acquire.Config{
		ID: c.Sensor.ID,
		Bus: platform.BusConfig{
			ID:    c.Sensor.Bus,
			SDA:   c.Sensor.SDA,
			SCL:   c.Sensor.SCL,
			Clock: physic.Frequency(c.Sensor.ClockHz) * physic.Hertz,
		},
		Address:        c.Sensor.Address,
		ResetDelay:     timex.Ms(c.Timing.ResetMs),
		TriggerDelay:   timex.Ms(c.Timing.TriggerMs),
		DataReadyDelay: timex.Ms(c.Timing.DataReadyMs),
		SampleDelay:    timex.Ms(c.Timing.SampleMs),
		Opcode:         mesh.OpStatus,
		Group:          mesh.Addr(c.Mesh.Group),
		Element:        c.Mesh.Element,
		Ack:            c.Mesh.Ack,
	}
}

// MQTT returns the broker settings.
func (c *Config) MQTT() mesh.MQTTConfig {
	return mesh.MQTTConfig{
		Broker:      c.Mesh.Broker,
		ClientID:    c.Mesh.ClientID,
		Username:    c.Mesh.Username,
		Password:    c.Mesh.Password,
		TopicPrefix: c.Mesh.TopicPrefix,
	}
}
