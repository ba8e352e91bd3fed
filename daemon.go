package tickd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/alarm"
	"github.com/openfutures/tickd/archive"
	"github.com/openfutures/tickd/bar"
	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/config"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/gateway"
	"github.com/openfutures/tickd/gateway/feed"
	"github.com/openfutures/tickd/gateway/replay"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/registry"
	"github.com/openfutures/tickd/store"
	appendlog "github.com/openfutures/tickd/store/append"
	"github.com/openfutures/tickd/store/cold"
	"github.com/openfutures/tickd/store/hot"
	"github.com/openfutures/tickd/supervisor"
	"github.com/openfutures/tickd/sym"
)

// Daemon is the assembled pipeline. Construction wires every component
// and bus subscription; Run hands lifecycle control to the supervisor.
type Daemon struct {
	rt  *Runtime
	log *zap.SugaredLogger

	Bus       *bus.Bus
	Sink      *alarm.BusSink
	Hot       *hot.Store
	Cold      *cold.Store
	Append    *appendlog.Writer
	Router    *store.Router
	Archiver  *archive.Archiver
	Bars      *bar.Set
	Registry  *registry.Registry
	Adapter   gateway.Adapter
	Scheduler *alarm.Scheduler
	Sup       *supervisor.Supervisor
}

// NewDaemon builds the pipeline from a loaded configuration. Nothing
// runs yet; Run starts the supervisor.
func NewDaemon(cfg *config.Config, log *zap.SugaredLogger) (*Daemon, error) {
	intervals, err := md.ParseIntervals(cfg.Bar.Intervals)
	if err != nil {
		return nil, errors.Wrap(err, "bar intervals")
	}

	d := &Daemon{
		rt:  NewRuntime(cfg, log),
		log: log.Named("daemon"),
	}

	d.Bus = bus.New(bus.Config{
		GeneralWorkers: cfg.GeneralWorkers(),
		MarketWorkers:  cfg.MarketWorkers(),
		QueueCapacity:  cfg.Bus.QueueCapacity,
		TimerInterval:  cfg.TimerInterval(),
	}, log)
	d.Sink = alarm.NewBusSink(d.Bus, cfg.Alarm.MaxPerMinute, log)

	d.Hot, err = hot.New(hot.Config{
		Dir:              cfg.HotDir(),
		TickThreshold:    cfg.Hot.TickFlushThreshold,
		BarThreshold:     cfg.Hot.BarFlushThreshold,
		MonitorInterval:  time.Duration(cfg.Hot.MonitorIntervalSeconds) * time.Second,
		MaxFlushLifetime: time.Duration(cfg.Hot.MaxFlushLifetimeSeconds) * time.Second,
	}, d.Sink, log)
	if err != nil {
		return nil, err
	}
	d.Cold, err = cold.New(cfg.ColdDir(), log)
	if err != nil {
		return nil, err
	}
	d.Append, err = appendlog.New(appendlog.Config{
		Dir:            cfg.CSVDir(),
		Workers:        cfg.Append.Workers,
		BatchThreshold: cfg.Append.BatchThreshold,
		QueueCapacity:  cfg.Append.QueueCapacity,
		SubmitTimeout:  cfg.SubmitTimeout(),
	}, log)
	if err != nil {
		return nil, err
	}

	d.Router = store.NewRouter(d.Hot, d.Cold, d.Append, cfg.Data.RetentionDays, d.Sink, log)
	d.Archiver = archive.New(d.Hot, d.Cold, cfg.Data.RetentionDays, d.Sink, log)

	d.Bars = bar.NewSet(intervals, cfg.DayAnchorMinutes(), d.publishBar, log)

	d.Adapter, err = d.buildAdapter(cfg, log)
	if err != nil {
		return nil, err
	}

	d.Registry, err = registry.New(registry.Config{
		TablePath:     cfg.Registry.InstrumentTable,
		SidecarPath:   cfg.Registry.Sidecar,
		GuardInterval: cfg.GuardInterval(),
		GuardTimeout:  cfg.GuardTimeout(),
	}, d.Adapter, d.rt, log)
	if err != nil {
		return nil, err
	}

	d.Scheduler, err = alarm.NewScheduler(alarm.Config{
		ArchiveCron:      cfg.Alarm.ArchiveCron,
		SessionCloseCron: cfg.Alarm.SessionCloseCron,
	}, d.Bus, log)
	if err != nil {
		return nil, err
	}

	d.subscribe()
	if err := d.registerComponents(); err != nil {
		return nil, err
	}
	return d, nil
}

// Runtime exposes the shared process context.
func (d *Daemon) Runtime() *Runtime { return d.rt }

func (d *Daemon) buildAdapter(cfg *config.Config, log *zap.SugaredLogger) (gateway.Adapter, error) {
	switch cfg.Gateway.Mode {
	case "", "feed":
		if cfg.Gateway.FeedURL == "" {
			return nil, errors.New("gateway.feed_url is required in feed mode")
		}
		return feed.New(feed.Config{
			URL:          cfg.Gateway.FeedURL,
			ReconnectMax: time.Duration(cfg.Gateway.ReconnectMaxSec) * time.Second,
		}, d.Bus, log), nil
	case "replay":
		if cfg.Gateway.ReplayPath == "" {
			return nil, errors.New("gateway.replay_path is required in replay mode")
		}
		return replay.New(replay.Config{
			Path:  cfg.Gateway.ReplayPath,
			Delay: time.Duration(cfg.Gateway.ReplayDelayMs) * time.Millisecond,
		}, d.Bus, log), nil
	default:
		return nil, errors.Newf("unknown gateway mode %q", cfg.Gateway.Mode)
	}
}

// subscribe wires the pipeline's event flow.
func (d *Daemon) subscribe() {
	d.Bus.Subscribe(bus.KindTick, d.onTick)
	d.Bus.Subscribe(bus.KindBar, d.onBar)
	d.Bus.Subscribe(bus.KindMDLogin, d.Registry.HandleSession)
	d.Bus.Subscribe(bus.KindTDLogin, d.Registry.HandleSession)
	d.Bus.SubscribeAsync(bus.KindArchive, d.onArchive)
	d.Bus.SubscribeAsync(bus.KindSessionClose, d.onSessionClose)
}

// onTick drives one quote through the pipeline: contract bookkeeping,
// bar synthesis, storage fan-out.
func (d *Daemon) onTick(_ context.Context, ev bus.Event) error {
	tick, ok := ev.Payload.(*md.Tick)
	if !ok {
		return errors.Newf("tick event with %T payload", ev.Payload)
	}
	d.Registry.Touch(tick.InstrumentID, tick.Timestamp)
	d.Bars.Update(tick)
	d.Router.SaveTicks([]*md.Tick{tick})
	return nil
}

func (d *Daemon) onBar(_ context.Context, ev bus.Event) error {
	b, ok := ev.Payload.(*md.Bar)
	if !ok {
		return errors.Newf("bar event with %T payload", ev.Payload)
	}
	d.Router.SaveBars([]*md.Bar{b})
	return nil
}

// publishBar is the bar set's close callback; closed bars travel the
// bus like ticks so any subscriber can observe them.
func (d *Daemon) publishBar(b md.Bar) {
	err := d.Bus.Publish(bus.Event{
		Kind:    bus.KindBar,
		Source:  "bar.set",
		Time:    time.Now(),
		Payload: &b,
	})
	if err != nil && !errors.IsDrainingError(err) {
		d.log.Errorw(sym.Bar+" Bar publish failed", "instrument", b.InstrumentID, "error", err)
	}
}

func (d *Daemon) onArchive(ctx context.Context, ev bus.Event) error {
	_, err := d.Archiver.Run(ctx)
	return err
}

// onSessionClose finishes the trading day: open bars are emitted, the
// hot buffers land, and the day's CSV tree is deduplicated and packed.
func (d *Daemon) onSessionClose(_ context.Context, ev bus.Event) error {
	task, ok := ev.Payload.(bus.TaskFired)
	if !ok {
		return errors.Newf("session close event with %T payload", ev.Payload)
	}
	day := task.Day
	if day == "" {
		day = d.rt.TradingDay()
	}
	d.Bars.FlushOpen()
	if err := d.Hot.Flush(); err != nil {
		d.log.Errorw(sym.DB+" Session close flush failed", "error", err)
	}
	return appendlog.CloseDay(d.rt.Config().CSVDir(), day, d.log)
}

// registerComponents hands every component to the supervisor in
// dependency terms; the supervisor derives the start order.
func (d *Daemon) registerComponents() error {
	components := []supervisor.Component{
		{
			Name:  "bus",
			Start: func(context.Context) error { d.Bus.Start(); return nil },
			Stop: func(context.Context) error {
				d.Bus.Stop()
				return nil
			},
			Health: func(context.Context) error {
				if !d.Bus.Running() {
					return errors.ErrNotRunning
				}
				return nil
			},
		},
		{
			Name:  "hot",
			Deps:  []string{"bus"},
			Start: func(context.Context) error { d.Hot.Start(); return nil },
			Stop:  func(ctx context.Context) error { return d.Hot.Stop(ctx) },
		},
		{
			Name: "cold",
			Deps: []string{"bus"},
		},
		{
			Name:  "append",
			Deps:  []string{"bus"},
			Start: func(context.Context) error { d.Append.Start(); return nil },
			Stop:  func(context.Context) error { d.Append.Stop(); return nil },
		},
		{
			Name: "router",
			Deps: []string{"hot", "cold", "append"},
			Stop: func(ctx context.Context) error { return d.Router.Stop(ctx) },
		},
		{
			Name: "bars",
			Deps: []string{"router"},
		},
		{
			Name: "archiver",
			Deps: []string{"hot", "cold"},
		},
		{
			Name:  "registry",
			Deps:  []string{"bus", "router"},
			Start: func(context.Context) error { d.Registry.StartGuard(); return nil },
			Stop:  func(context.Context) error { d.Registry.StopGuard(); return nil },
		},
		{
			Name:  "scheduler",
			Deps:  []string{"bus", "archiver"},
			Start: func(context.Context) error { d.Scheduler.Start(); return nil },
			Stop:  func(context.Context) error { d.Scheduler.Stop(); return nil },
		},
		{
			Name:  "gateway",
			Deps:  []string{"registry", "bars"},
			Start: func(ctx context.Context) error { return d.Adapter.Start(ctx) },
			Stop:  func(ctx context.Context) error { return d.Adapter.Stop(ctx) },
		},
	}

	d.Sup = supervisor.New(d.log)
	for _, c := range components {
		if err := d.Sup.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every component and blocks until a shutdown signal (or
// Shutdown call) has torn the pipeline down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Sup.Start(ctx); err != nil {
		return err
	}
	d.log.Infow(sym.Pulse + " tickd running")
	<-d.Sup.NotifySignals(ctx)
	return nil
}

// Shutdown triggers the same teardown path as SIGTERM.
func (d *Daemon) Shutdown() { d.Sup.Shutdown() }
