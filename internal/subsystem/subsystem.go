// Package subsystem assembles the copilot daemon from its configuration:
// slot store, script engine, GPS receiver, radio, clock governor, telemetry
// uplink, window history, metrics and the RPC surface, all driven by one
// event loop.
package subsystem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skytrace/copilot/internal/config"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/history"
	"github.com/skytrace/copilot/internal/jsengine"
	"github.com/skytrace/copilot/internal/metrics"
	"github.com/skytrace/copilot/internal/power"
	"github.com/skytrace/copilot/internal/radio"
	"github.com/skytrace/copilot/internal/scheduler"
	"github.com/skytrace/copilot/internal/server"
	"github.com/skytrace/copilot/internal/slotstore"
	"github.com/skytrace/copilot/internal/systime"
	"github.com/skytrace/copilot/internal/timeline"
	"github.com/skytrace/copilot/internal/transport"
	"github.com/skytrace/copilot/pkg/logger"
	"github.com/spf13/afero"
)

// shutdownTimeout bounds the web server's graceful stop.
const shutdownTimeout = 5 * time.Second

// Receiver is a GPS that reports locks through a callback.
type Receiver interface {
	copilot.GPS
	SetOnLock(fn func(gps.Fix))
	Close() error
}

// Options carry what the configuration does not.
type Options struct {
	// Fs backs the slot store and the governor. Nil means the OS filesystem.
	Fs        afero.Fs
	Version   string
	Commit    string
	BuildType string
	// Receiver replaces the configured GPS receiver.
	Receiver Receiver
	// RadioLine replaces the configured GPIO enable line.
	RadioLine radio.Line
	// Publisher replaces the configured telemetry uplink.
	Publisher transport.Publisher
}

// Subsystem is the assembled daemon.
type Subsystem struct {
	cfg *config.Config
	l   logger.Logger

	store    *slotstore.Store
	engine   *jsengine.Engine
	queue    *scheduler.Queue
	loop     *scheduler.Loop
	cp       *copilot.Copilot
	gps      Receiver
	radio    *radio.Radio
	governor *power.Governor
	uplink   *transport.Telemetry
	history  *history.Store
	writer   *historyWriter
	metrics  *metrics.Metrics
	rpc      *server.RPCServer
	web      *server.WebServer
}

// New builds a subsystem from cfg. Resources opened before a failure are
// released.
func New(cfg *config.Config, l logger.Logger, opts Options) (_ *Subsystem, err error) {
	ccfg, err := cfg.Copilot()
	if err != nil {
		return nil, err
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	// s stays reachable from the deferred cleanup whatever New returns
	s := &Subsystem{cfg: cfg, l: l}
	defer func() {
		if err != nil {
			if cerr := s.Close(); cerr != nil {
				l.Warning("subsystem: cleanup after failed setup: %v", cerr)
			}
		}
	}()

	s.store, err = slotstore.New(fs, cfg.Store.Dir, l)
	if err != nil {
		return nil, err
	}
	if err = s.store.SeedDefaults(); err != nil {
		return nil, err
	}
	s.engine = jsengine.New(s.store, l, cfg.Store.ScriptTimeout)

	clock := systime.NewMonotonic()
	s.queue = scheduler.NewQueue()
	s.loop = scheduler.NewLoop(s.queue, clock)

	s.gps = opts.Receiver
	if s.gps == nil {
		s.gps = newReceiver(cfg.GPS, clock, l)
	}

	var deps copilot.Deps
	if line := opts.RadioLine; line != nil {
		s.radio = radio.New(line, l)
	} else if cfg.Radio.Enabled {
		line, err := radio.OpenGPIO(cfg.Radio.Chip, cfg.Radio.Line)
		if err != nil {
			return nil, fmt.Errorf("radio: %w", err)
		}
		s.radio = radio.New(line, l)
	}
	if s.radio != nil {
		deps.Radio = s.radio
	}
	if cfg.Power.Enabled {
		s.governor = power.NewGovernor(fs, cfg.Power.GovernorPath, l)
		deps.Clock = s.governor
	}

	pub := opts.Publisher
	if pub == nil {
		if pub, err = newPublisher(cfg.MQTT, l); err != nil {
			return nil, err
		}
	}
	s.uplink = transport.New(pub, cfg.MQTT.Topic, s.engine, func() (gps.Fix, bool) {
		return s.cp.LastFix()
	})

	if cfg.History.Path != "" {
		if s.history, err = history.Open(cfg.History.Path); err != nil {
			return nil, err
		}
		s.writer = newHistoryWriter(s.history, l)
	}

	s.metrics = metrics.New()
	s.rpc = server.NewRPCServer(&server.RPCConfig{
		Secret:    cfg.RPC.Secret,
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildType: opts.BuildType,
	}, l, s.store, s, s.historySource())
	if cfg.RPC.Secret == "" {
		l.Warning("rpc: no secret configured, all calls will be refused")
	}
	if cfg.RPC.Listen != "" {
		s.web = server.NewWebServer(l, cfg.RPC.Listen, s.rpc, s.metrics.Handler())
	}

	observers := multiObserver{s.metrics, s.rpc.Notifier()}
	if s.writer != nil {
		observers = append(observers, s.writer)
	}

	deps.GPS = s.gps
	deps.Engine = s.engine
	deps.Defs = s.store
	deps.Time = clock
	deps.Queue = s.queue
	deps.Logger = l
	deps.Transport = s.uplink
	deps.Observer = observers
	s.cp = copilot.New(ccfg, deps)

	s.gps.SetOnLock(func(fix gps.Fix) {
		if !s.loop.Post(func() { s.cp.OnGpsLock(fix) }) {
			l.Warning("gps: dropping lock at %s, loop stopped", fix.DateTime())
		}
	})
	return s, nil
}

func newReceiver(cfg config.GPSConfig, clock *systime.Monotonic, l logger.Logger) Receiver {
	if cfg.Simulate {
		l.Info("gps: simulated receiver, lock after %s", cfg.SimulateDelay)
		return gps.NewSimulated(clock.NotionalNow, cfg.SimulateDelay, gps.Quality3DPlus)
	}
	return gps.NewSerialReceiver(l, gps.SerialOptions{Port: cfg.Port, BaudRate: cfg.Baud})
}

func newPublisher(cfg config.MQTTConfig, l logger.Logger) (transport.Publisher, error) {
	if cfg.Broker == "" {
		l.Info("transport: no broker configured, telemetry is logged only")
		return transport.LogPublisher{L: l}, nil
	}
	pub, err := transport.NewMQTTPublisher(cfg.Broker, cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return pub, nil
}

// historySource avoids handing the RPC server a typed nil.
func (s *Subsystem) historySource() server.History {
	if s.history == nil {
		return nil
	}
	return s.history
}

// Store returns the slot store.
func (s *Subsystem) Store() *slotstore.Store { return s.store }

// Engine returns the script engine.
func (s *Subsystem) Engine() *jsengine.Engine { return s.engine }

// Metrics returns the metrics collector.
func (s *Subsystem) Metrics() *metrics.Metrics { return s.metrics }

// RPC returns the RPC server.
func (s *Subsystem) RPC() *server.RPCServer { return s.rpc }

// Run starts the web server, requests the first lock and drives the loop
// until ctx is cancelled. A web server failure stops the loop.
func (s *Subsystem) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if s.web != nil {
		go func() {
			if err := s.web.Start(); err != nil {
				cancel(fmt.Errorf("rpc: %w", err))
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := s.web.Shutdown(sctx); err != nil {
				s.l.Warning("rpc: shutdown: %v", err)
			}
		}()
	}

	s.loop.Post(s.cp.Start)
	err := s.loop.Run(ctx)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases every resource the subsystem opened.
func (s *Subsystem) Close() error {
	var errs []error
	if s.gps != nil {
		errs = append(errs, s.gps.Close())
	}
	if s.rpc != nil {
		s.rpc.Close()
	}
	if s.writer != nil {
		s.writer.Close()
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.uplink != nil {
		errs = append(errs, s.uplink.Close())
	}
	if s.radio != nil {
		errs = append(errs, s.radio.Close())
	}
	return errors.Join(errs...)
}

// Status implements server.Scheduler.
func (s *Subsystem) Status(ctx context.Context) (copilot.Status, error) {
	var st copilot.Status
	err := s.loop.Call(ctx, func() { st = s.cp.Status() })
	return st, err
}

// SimulateLock delivers fix as if the receiver had reported it.
func (s *Subsystem) SimulateLock(ctx context.Context, fix gps.Fix) error {
	s.l.Info("Simulating GPS lock at %s (%s)", fix.DateTime(), fix.Quality)
	return s.loop.Call(ctx, func() { s.cp.OnGpsLock(fix) })
}

// Marks returns the current window's marks.
func (s *Subsystem) Marks(ctx context.Context) ([]timeline.Entry, error) {
	var marks []timeline.Entry
	err := s.loop.Call(ctx, func() { marks = s.cp.Timeline() })
	return marks, err
}

// multiObserver fans marks and reports out to several observers.
type multiObserver []copilot.Observer

func (m multiObserver) OnMark(windowID string, e timeline.Entry) {
	for _, o := range m {
		o.OnMark(windowID, e)
	}
}

func (m multiObserver) OnWindowReport(r copilot.Report) {
	for _, o := range m {
		o.OnWindowReport(r)
	}
}
