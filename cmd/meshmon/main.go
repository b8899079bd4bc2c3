// Command meshmon subscribes to the MQTT mesh gateway, decodes sensor
// status messages, drops repeated transaction ids and optionally writes the
// readings to InfluxDB.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"meshsense-go/mesh"
	"meshsense-go/services/config"
	"meshsense-go/x/logx"
)

var log = logx.New("main")

func main() {
	cfgPath := flag.String("config", "", "YAML config file (default: embedded config for -device)")
	device := flag.String("device", "sht30-gateway", "embedded config used when -config is empty")
	group := flag.Int("group", -1, "only this destination group (default: all)")
	flag.Parse()

	if err := run(*cfgPath, *device, *group); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfgPath, device string, group int) error {
	cfg, err := config.Load(cfgPath, device)
	if err != nil {
		return err
	}
	logx.SetQuiet(cfg.Log.Quiet)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink pointWriter
	if cfg.Influx.URL != "" && cfg.Influx.Bucket != "" {
		client := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		defer client.Close()
		sink = client.WriteAPIBlocking(cfg.Influx.Org, cfg.Influx.Bucket)
		log.Infof("writing to %s bucket %s", cfg.Influx.URL, cfg.Influx.Bucket)
	}

	mq := cfg.MQTT()
	mq.ClientID += "-mon"
	client, err := mesh.DialMQTT(ctx, mq)
	if err != nil {
		return err
	}

	var dst *mesh.Addr
	if group >= 0 {
		a := mesh.Addr(group)
		dst = &a
	}
	mon := NewMonitor(sink)
	sub := mesh.NewMQTTSubscriber(client, mq.TopicPrefix, dst, mesh.OpStatus)
	err = sub.Run(ctx, func(rx mesh.Received) { mon.Handle(ctx, rx) })
	log.Infof("stopped: %s", mon.Stats())
	return err
}
