// Command sht30d runs the SHT3x acquisition task on one bus and publishes
// changed readings to the mesh group, either on the local bus or through an
// MQTT gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meshsense-go/bus"
	"meshsense-go/mesh"
	"meshsense-go/platform"
	"meshsense-go/services/acquire"
	"meshsense-go/services/config"
	"meshsense-go/services/sched"
	"meshsense-go/services/telemetry"
	"meshsense-go/types"
	"meshsense-go/x/logx"
)

var log = logx.New("main")

func main() {
	cfgPath := flag.String("config", "", "YAML config file (default: embedded config for -device)")
	device := flag.String("device", "sht30-node", "embedded config used when -config is empty")
	sim := flag.Bool("sim", false, "drive a simulated sensor instead of the host bus")
	monitor := flag.Bool("monitor", false, "log mesh frames published on the local bus")
	flag.Parse()

	if err := run(*cfgPath, *device, *sim, *monitor); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfgPath, device string, sim, monitor bool) error {
	cfg, err := config.Load(cfgPath, device)
	if err != nil {
		return err
	}
	logx.SetQuiet(cfg.Log.Quiet)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("bootstrapping bus for %s", cfg.Device)
	b := bus.NewBus(8)

	if err := config.NewService(cfg).Start(ctx, b.NewConnection("config")); err != nil {
		return err
	}
	tel := telemetry.New(telemetry.NewMetrics(prometheus.DefaultRegisterer))
	if err := tel.Start(ctx, b.NewConnection("telemetry")); err != nil {
		return err
	}
	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen, healthCheck(b.NewConnection("healthz"), cfg.Sensor.ID))
	}
	if monitor {
		go monitorFrames(ctx, b.NewConnection("monitor"))
	}

	buses, pin, err := openHardware(cfg, sim)
	if err != nil {
		return err
	}
	pub, err := newPublisher(ctx, cfg, b)
	if err != nil {
		return err
	}

	loop := sched.New()
	task, err := acquire.New(cfg.Acquire(), acquire.Deps{
		Sched:     loop,
		Buses:     buses,
		Reset:     pin,
		Publisher: pub,
		Conn:      b.NewConnection("acquire"),
	})
	if err != nil {
		return err
	}
	if err := task.Init(); err != nil {
		return err
	}
	log.Infof("acquisition running, publishing %s to group %s", mesh.OpStatus, mesh.Addr(cfg.Mesh.Group))
	loop.Run(ctx, task.ProcessEvent)

	st := task.Stats()
	log.Infof("stopped: %d readings, %d published, %d timeouts, %d checksum errors",
		st.Readings, st.Published, st.Timeouts, st.Checksum)
	return nil
}

func newPublisher(ctx context.Context, cfg config.Config, b *bus.Bus) (mesh.Publisher, error) {
	switch cfg.Mesh.Transport {
	case config.TransportMQTT:
		client, err := mesh.DialMQTT(ctx, cfg.MQTT())
		if err != nil {
			return nil, err
		}
		return mesh.NewMQTTPublisher(client, cfg.Mesh.TopicPrefix, 2*time.Second, mesh.BreakerSettings{}), nil
	default:
		return mesh.NewBusPublisher(b.NewConnection("mesh")), nil
	}
}

// simSamples wanders slowly so that some cycles repeat the last value.
func simSamples(n int) platform.Sample {
	return platform.Sample{
		ST:  0x666A + uint16((n/4)%8)*24,
		SRH: 0x8000 + uint16((n/10)%5)*0x200,
	}
}

func openSim() (platform.BusOpener, platform.Pin) {
	s := platform.NewSimSHT3x()
	s.Gen = simSamples
	return platform.NewSimBus(s), &platform.SimPin{N: platform.DefaultResetPin}
}

// healthCheck reports 200 while the sensor link is up.
func healthCheck(conn *bus.Connection, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		snap, err := telemetry.Query(ctx, conn, id)
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case snap.Link != types.LinkUp:
			http.Error(w, "link "+string(snap.Link), http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}
}

func serveMetrics(ctx context.Context, addr string, health http.HandlerFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	log.Infof("metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics: %v", err)
	}
}

func monitorFrames(ctx context.Context, conn *bus.Connection) {
	sub := conn.Subscribe(bus.T(mesh.TopicMesh, bus.WildRest))
	defer conn.Unsubscribe(sub)
	mon := logx.New("monitor")
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			f, ok := m.Payload.(mesh.Frame)
			if !ok {
				continue
			}
			st, err := mesh.ParseStatus(f.Payload)
			if err != nil {
				mon.Errorf("%s: %v", f.Opcode, err)
				continue
			}
			r, err := mesh.SensorReading(st)
			if err != nil {
				mon.Infof("%s dst=%s tid=%d type=%04x", f.Opcode, f.Dst, st.TID, uint16(st.Type))
				continue
			}
			mon.Infof("%s dst=%s tid=%d %d centi-C %d%%RH", f.Opcode, f.Dst, st.TID, r.CentiCelsius(), r.HumInt)
		}
	}
}
