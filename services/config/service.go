package config

import (
	"context"
	"errors"

	"gopkg.in/yaml.v3"

	"meshsense-go/bus"
	"meshsense-go/x/logx"
)

// -----------------------------------------------------------------------------
// String constants
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// Topic returns config/<key>.
func Topic(key string) bus.Topic { return bus.T(configPrefix, key) }

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

// Service publishes every top-level section of a Config as a retained
// config/<key> message with a generic map payload.
type Service struct {
	Name string
	cfg  Config
	log  *logx.Logger
}

func NewService(cfg Config) *Service {
	return &Service{Name: serviceName, cfg: cfg, log: logx.New(serviceName)}
}

// Sections flattens cfg into key -> generic value, as published.
func Sections(cfg Config) (map[string]any, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("config is not a mapping")
	}
	return m, nil
}

func (s *Service) publishConfig(conn *bus.Connection) error {
	m, err := Sections(s.cfg)
	if err != nil {
		return err
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(Topic(k), v, true))
	}
	s.log.Infof("published %d sections for %s", len(m), s.cfg.Device)
	return nil
}

// Start publishes the configuration. Sections are retained, so services
// started later still receive them.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.publishConfig(conn); err != nil {
		s.log.Errorf("publish: %v", err)
		return err
	}
	return nil
}
