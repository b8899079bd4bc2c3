package mesh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"meshsense-go/errcode"
	"meshsense-go/x/logx"
	"meshsense-go/x/strx"
)

var log = logx.New("mesh")

// MQTTConfig describes the gateway broker that stands in for the mesh
// network on host builds.
type MQTTConfig struct {
	Broker      string // tcp://host:port
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	MaxRetries  uint64
	MaxElapsed  time.Duration
}

func (c *MQTTConfig) defaults() {
	c.TopicPrefix = strx.Coalesce(c.TopicPrefix, TopicMesh)
	if c.MaxRetries == 0 {
		c.MaxRetries = 4
	}
	if c.MaxElapsed == 0 {
		c.MaxElapsed = 10 * time.Second
	}
}

// DialMQTT connects with exponential backoff and disconnects when ctx ends.
func DialMQTT(ctx context.Context, cfg MQTTConfig) (mqtt.Client, error) {
	cfg.defaults()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("broker connection lost: %v", err)
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsed

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		tok := client.Connect()
		if tok.Wait() && tok.Error() != nil {
			log.Errorf("connect %s: %v", cfg.Broker, tok.Error())
			return tok.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, cfg.MaxRetries), ctx))
	if err != nil {
		return nil, errcode.Wrap(errcode.NotConnected, "mesh.dial", err)
	}
	log.Infof("connected to %s", cfg.Broker)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
	}()
	return client, nil
}

// MQTTClient is the part of mqtt.Client the publisher needs.
type MQTTClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher forwards frames to <prefix>/<dst>/<opcode>. Each publish
// waits at most Wait and runs through a circuit breaker, so a dead broker
// costs the caller one bounded wait and then fails fast.
type MQTTPublisher struct {
	client MQTTClient
	prefix string
	wait   time.Duration
	cb     *gobreaker.CircuitBreaker
}

type BreakerSettings struct {
	Failures uint32        // consecutive failures that open the breaker
	Open     time.Duration // time spent open before a half-open probe
	Interval time.Duration // closed-state counter reset period
}

func NewMQTTPublisher(client MQTTClient, prefix string, wait time.Duration, bs BreakerSettings) *MQTTPublisher {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	if bs.Failures == 0 {
		bs.Failures = 3
	}
	if bs.Open == 0 {
		bs.Open = 30 * time.Second
	}
	return &MQTTPublisher{
		client: client,
		prefix: strx.Coalesce(strx.JoinTopic(prefix), TopicMesh),
		wait:   wait,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "mesh-mqtt",
			Interval: bs.Interval,
			Timeout:  bs.Open,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= bs.Failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Infof("breaker %s: %s -> %s", name, from, to)
			},
		}),
	}
}

// Topic returns the broker topic for a frame.
func (p *MQTTPublisher) Topic(dst Addr, op Opcode) string {
	return strx.JoinTopic(p.prefix, dst.String(), opHex(op))
}

// State exposes the breaker state for telemetry.
func (p *MQTTPublisher) State() gobreaker.State { return p.cb.State() }

func (p *MQTTPublisher) PublishRaw(op Opcode, dst Addr, element uint8, payload []byte, ack bool) error {
	topic := p.Topic(dst, op)
	var qos byte
	if ack {
		qos = 1
	}
	_, err := p.cb.Execute(func() (interface{}, error) {
		if !p.client.IsConnectionOpen() {
			return nil, errcode.NotConnected
		}
		tok := p.client.Publish(topic, qos, false, append([]byte(nil), payload...))
		if !tok.WaitTimeout(p.wait) {
			return nil, errcode.Wrap(errcode.BusTimeout, "mesh.publish", fmt.Errorf("no ack within %s", p.wait))
		}
		return nil, tok.Error()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return errcode.Wrap(errcode.CircuitOpen, "mesh.publish", err)
	case errcode.Of(err) != errcode.Error:
		return err
	}
	return errcode.Wrap(errcode.PublishFailed, "mesh.publish", err)
}

// ParseTopic splits <prefix>/<dst>/<opcode>.
func ParseTopic(prefix, topic string) (Addr, Opcode, error) {
	rest, ok := strings.CutPrefix(topic, strx.JoinTopic(prefix)+"/")
	if !ok {
		return 0, 0, errcode.Wrap(errcode.InvalidTopic, "mesh.topic", errTopic)
	}
	dstS, opS, ok := strings.Cut(rest, "/")
	if !ok || strings.Contains(opS, "/") {
		return 0, 0, errcode.Wrap(errcode.InvalidTopic, "mesh.topic", errTopic)
	}
	dst, err := strconv.ParseUint(dstS, 16, 16)
	if err != nil {
		return 0, 0, errcode.Wrap(errcode.InvalidTopic, "mesh.topic", err)
	}
	op, err := strconv.ParseUint(opS, 16, 32)
	if err != nil {
		return 0, 0, errcode.Wrap(errcode.InvalidTopic, "mesh.topic", err)
	}
	return Addr(dst), Opcode(op), nil
}

func opHex(op Opcode) string { return fmt.Sprintf("%08x", uint32(op)) }

// Received is one status decoded off the broker.
type Received struct {
	Src    string // topic it arrived on
	Dst    Addr
	Opcode Opcode
	Status Status
}

// MQTTSubscriber decodes status frames published under a prefix.
type MQTTSubscriber struct {
	client mqtt.Client
	prefix string
	filter string
}

// NewMQTTSubscriber listens on <prefix>/<dst or +>/<opcode>.
func NewMQTTSubscriber(client mqtt.Client, prefix string, dst *Addr, op Opcode) *MQTTSubscriber {
	prefix = strx.Coalesce(strx.JoinTopic(prefix), TopicMesh)
	d := "+"
	if dst != nil {
		d = dst.String()
	}
	return &MQTTSubscriber{client: client, prefix: prefix, filter: strx.JoinTopic(prefix, d, opHex(op))}
}

func (s *MQTTSubscriber) Filter() string { return s.filter }

// Run subscribes and calls fn for every decodable message until ctx ends.
// Malformed messages are logged and skipped.
func (s *MQTTSubscriber) Run(ctx context.Context, fn func(Received)) error {
	tok := s.client.Subscribe(s.filter, 0, func(_ mqtt.Client, m mqtt.Message) {
		rx, err := Decode(s.prefix, m.Topic(), m.Payload())
		if err != nil {
			log.Errorf("drop %s: %v", m.Topic(), err)
			return
		}
		fn(rx)
	})
	if tok.Wait() && tok.Error() != nil {
		return errcode.Wrap(errcode.NotConnected, "mesh.subscribe", tok.Error())
	}
	log.Infof("subscribed %s", s.filter)
	<-ctx.Done()
	s.client.Unsubscribe(s.filter).WaitTimeout(time.Second)
	return nil
}

// Decode turns one broker message into a Received.
func Decode(prefix, topic string, payload []byte) (Received, error) {
	dst, op, err := ParseTopic(prefix, topic)
	if err != nil {
		return Received{}, err
	}
	st, err := ParseStatus(payload)
	if err != nil {
		return Received{}, err
	}
	return Received{Src: topic, Dst: dst, Opcode: op, Status: st}, nil
}
