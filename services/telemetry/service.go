// Package telemetry turns the acquisition topics into Prometheus metrics and
// a periodic heartbeat log line.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meshsense-go/bus"
	"meshsense-go/services/acquire"
	"meshsense-go/types"
	"meshsense-go/x/logx"
	"meshsense-go/x/mathx"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

// TopicGet answers snapshot requests; the request payload is a sensor id.
var TopicGet = bus.T("telemetry", "get")

// Snapshot is the reply to a TopicGet request.
type Snapshot struct {
	Sensor   string
	Value    types.EnvValue
	HasValue bool
	Link     types.Link
}

const defaultInterval = time.Second

type Service struct {
	metrics *Metrics
	log     *logx.Logger

	mu    sync.Mutex
	last  map[string]types.EnvValue
	links map[string]types.Link
}

// New returns a service feeding m; m may be nil for log-only use.
func New(m *Metrics) *Service {
	return &Service{
		metrics: m,
		log:     logx.New("telemetry"),
		last:    map[string]types.EnvValue{},
		links:   map[string]types.Link{},
	}
}

// Last returns the most recent value seen for a sensor.
func (s *Service) Last(id string) (types.EnvValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.last[id]
	return v, ok
}

// Link returns the most recent link state seen for a sensor.
func (s *Service) Link(id string) types.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.links[id]; ok {
		return l
	}
	return types.LinkDown
}

func (s *Service) snapshot(id string) Snapshot {
	v, ok := s.Last(id)
	return Snapshot{Sensor: id, Value: v, HasValue: ok, Link: s.Link(id)}
}

// Query asks a running service for the snapshot of one sensor.
func Query(ctx context.Context, conn *bus.Connection, id string) (Snapshot, error) {
	rep, err := conn.RequestWait(ctx, conn.NewMessage(TopicGet, id, false))
	if err != nil {
		return Snapshot{}, err
	}
	snap, ok := rep.Payload.(Snapshot)
	if !ok {
		return Snapshot{}, fmt.Errorf("telemetry: unexpected reply %T", rep.Payload)
	}
	return snap, nil
}

func (s *Service) handle(msg *bus.Message) {
	if msg.Topic.Len() < 3 {
		return
	}
	id, _ := msg.Topic.At(1).(string)
	switch p := msg.Payload.(type) {
	case types.EnvValue:
		s.mu.Lock()
		s.last[id] = p
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.Temperature.WithLabelValues(id).Set(float64(p.CentiC))
			s.metrics.Humidity.WithLabelValues(id).Set(float64(p.RH))
			if p.Published {
				s.metrics.Sequence.WithLabelValues(id).Set(float64(p.Seq))
			}
		}
	case types.CapabilityStatus:
		s.mu.Lock()
		s.links[id] = p.Link
		s.mu.Unlock()
		if s.metrics != nil {
			up := 0.0
			if p.Link == types.LinkUp {
				up = 1
			}
			s.metrics.LinkUp.WithLabelValues(id).Set(up)
		}
	case types.CycleEvent:
		if s.metrics != nil {
			s.metrics.Events.WithLabelValues(id, string(p.Outcome)).Inc()
		}
	}
}

func (s *Service) beat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.last) == 0 {
		s.log.Infof("heartbeat: no readings yet")
		return
	}
	for id, v := range s.last {
		s.log.Infof("heartbeat: %s %d.%02d C %d%%RH link=%s", id, v.CentiC/100, mathx.Abs(v.CentiC%100), v.RH, s.links[id])
	}
}

// interval reads a heartbeat config section. Numbers are seconds.
func interval(payload any) (time.Duration, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0, false
	}
	var sec float64
	switch v := m["interval"].(type) {
	case int:
		sec = float64(v)
	case float64:
		sec = v
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil && d > 0
	default:
		return 0, false
	}
	if sec <= 0 {
		return 0, false
	}
	return time.Duration(sec * float64(time.Second)), true
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, subs []*bus.Subscription, cfgSub, getSub *bus.Subscription) {
	defer func() {
		for _, sub := range subs {
			conn.Unsubscribe(sub)
		}
		conn.Unsubscribe(cfgSub)
		conn.Unsubscribe(getSub)
	}()

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Infof("stopping")
			return
		case <-tick.C:
			s.beat()
		case msg := <-subs[0].Channel():
			s.handle(msg)
		case msg := <-subs[1].Channel():
			s.handle(msg)
		case msg := <-subs[2].Channel():
			s.handle(msg)
		case msg := <-getSub.Channel():
			id, _ := msg.Payload.(string)
			conn.Reply(msg, s.snapshot(id), false)
		case msg := <-cfgSub.Channel():
			if d, ok := interval(msg.Payload); ok {
				tick.Reset(d)
				s.log.Infof("heartbeat interval set to %s", d)
			}
		}
	}
}

// Start subscribes and runs the service until ctx is cancelled. Messages
// published after Start returns are not missed.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	subs := []*bus.Subscription{
		conn.Subscribe(bus.T(acquire.TopicSensor, bus.WildOne, acquire.TopicValue)),
		conn.Subscribe(bus.T(acquire.TopicSensor, bus.WildOne, acquire.TopicStatus)),
		conn.Subscribe(bus.T(acquire.TopicSensor, bus.WildOne, acquire.TopicEvent, bus.WildOne)),
	}
	go s.serviceLoop(ctx, conn, subs, conn.Subscribe(topicConfigHeartbeat), conn.Subscribe(TopicGet))
	return nil
}
