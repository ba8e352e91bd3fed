package alarm

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// Scheduler publishes calendar-driven task events: the daily archive
// cycle and the post-session CSV maintenance. Time-driven subscribers
// receive them on the general queue like any other event.
type Scheduler struct {
	cron *cron.Cron
	bus  *bus.Bus
	log  *zap.SugaredLogger
}

// Config holds the cron specs (standard five-field syntax, exchange
// local time).
type Config struct {
	ArchiveCron      string
	SessionCloseCron string
}

// NewScheduler wires the cron entries. Invalid specs are configuration
// errors surfaced at construction, not at fire time.
func NewScheduler(cfg Config, b *bus.Bus, log *zap.SugaredLogger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithLocation(md.CST)),
		bus:  b,
		log:  log.Named("sched"),
	}

	if cfg.ArchiveCron != "" {
		if _, err := s.cron.AddFunc(cfg.ArchiveCron, func() {
			s.fire(bus.KindArchive, "archive")
		}); err != nil {
			return nil, errors.Wrapf(err, "archive cron %q", cfg.ArchiveCron)
		}
	}
	if cfg.SessionCloseCron != "" {
		if _, err := s.cron.AddFunc(cfg.SessionCloseCron, func() {
			s.fire(bus.KindSessionClose, "session_close")
		}); err != nil {
			return nil, errors.Wrapf(err, "session close cron %q", cfg.SessionCloseCron)
		}
	}

	return s, nil
}

// fire publishes one task event for today's trading day.
func (s *Scheduler) fire(kind bus.Kind, task string) {
	day := md.Today()
	s.log.Infow(sym.Pulse+" Scheduled task fired", "task", task, "day", day)
	if err := s.bus.Publish(bus.Event{
		Kind:    kind,
		Source:  "alarm.scheduler",
		Payload: bus.TaskFired{Task: task, Day: day, At: time.Now()},
	}); err != nil {
		s.log.Errorw(sym.Pulse+" Scheduled task publish failed", "task", task, "error", err)
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infow(sym.PulseOpen+" Alarm scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts the cron loop, waiting for any in-flight fire to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Infow(sym.PulseClose + " Alarm scheduler stopped")
}
