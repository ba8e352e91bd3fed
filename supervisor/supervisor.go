// Package supervisor owns component lifecycle for the daemon. Each
// component registers its name, dependencies, and start/stop hooks;
// the supervisor resolves a start order from the dependency graph,
// brings components up in order, and tears them down in reverse.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/sym"
)

// State tracks where a component is in its lifecycle.
type State string

const (
	StateRegistered State = "registered"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateError      State = "error"
)

// Component is one managed unit. Start and Stop may be nil for purely
// passive components; Health is optional and consulted only when the
// component is running.
type Component struct {
	Name   string
	Deps   []string
	Start  func(ctx context.Context) error
	Stop   func(ctx context.Context) error
	Health func(ctx context.Context) error
}

type entry struct {
	Component
	state    State
	stopOnce sync.Once
	stopErr  error
}

// Supervisor resolves the component graph and drives it up and down.
type Supervisor struct {
	mu      sync.Mutex
	entries map[string]*entry
	names   []string // registration order, for deterministic ties
	order   []string // topological order, set by Start

	signalCancel context.CancelFunc
	log          *zap.SugaredLogger
}

// New creates an empty supervisor.
func New(log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{
		entries: make(map[string]*entry),
		log:     log.Named("supervisor"),
	}
}

// Register adds a component. Names must be unique; registration after
// Start is a programming error and rejected.
func (s *Supervisor) Register(c Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Name == "" {
		return errors.New("component name is empty")
	}
	if _, dup := s.entries[c.Name]; dup {
		return errors.Newf("component %q already registered", c.Name)
	}
	if s.order != nil {
		return errors.Newf("component %q registered after start", c.Name)
	}
	s.entries[c.Name] = &entry{Component: c, state: StateRegistered}
	s.names = append(s.names, c.Name)
	return nil
}

// Start resolves the dependency order and starts every component. If
// one fails, the components already running are stopped in reverse
// before the error is returned.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	order, err := s.topoOrder()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.order = order
	s.mu.Unlock()

	var started []*entry
	for _, name := range order {
		e := s.entry(name)
		s.setState(e, StateStarting)
		if e.Start != nil {
			if err := e.Start(ctx); err != nil {
				s.setState(e, StateError)
				err = errors.Wrapf(err, "start %s", name)
				s.log.Errorw(sym.Alarm+" Component failed to start, rolling back",
					"component", name,
					"error", err)
				s.stopEntries(ctx, started)
				return err
			}
		}
		s.setState(e, StateRunning)
		s.log.Infow(sym.PulseOpen+" Component started", "component", name)
		started = append(started, e)
	}
	s.log.Infow(sym.Pulse+" All components running", "count", len(order))
	return nil
}

// Stop tears components down in reverse start order. Each stop hook
// runs exactly once no matter how many times Stop is called; stop
// errors are collected, not short-circuited.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	order := s.order
	s.mu.Unlock()
	if order == nil {
		return errors.Wrap(errors.ErrNotRunning, "supervisor stop")
	}

	entries := make([]*entry, 0, len(order))
	for _, name := range order {
		entries = append(entries, s.entry(name))
	}
	return s.stopEntries(ctx, entries)
}

// stopEntries stops the given components in reverse slice order.
func (s *Supervisor) stopEntries(ctx context.Context, entries []*entry) error {
	var errs error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		e.stopOnce.Do(func() {
			// Components that never made it to running have nothing to
			// tear down.
			if st := s.state(e); st != StateRunning && st != StateStarting {
				return
			}
			s.setState(e, StateStopping)
			if e.Stop != nil {
				if err := e.Stop(ctx); err != nil {
					e.stopErr = errors.Wrapf(err, "stop %s", e.Name)
					s.setState(e, StateError)
					s.log.Errorw(sym.Alarm+" Component stop failed",
						"component", e.Name,
						"error", e.stopErr)
					return
				}
			}
			s.setState(e, StateStopped)
			s.log.Infow(sym.PulseClose+" Component stopped", "component", e.Name)
		})
		errs = errors.CombineErrors(errs, e.stopErr)
	}
	return errs
}

// NotifySignals installs a handler that stops the supervisor on
// SIGINT or SIGTERM. The returned channel closes once the triggered
// shutdown finishes; callers block on it to keep the daemon alive.
func (s *Supervisor) NotifySignals(ctx context.Context) <-chan struct{} {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.signalCancel = cancel
	s.mu.Unlock()

	done := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer close(done)
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			s.log.Infow(sym.Gate+" Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		if err := s.Stop(context.Background()); err != nil && !errors.Is(err, errors.ErrNotRunning) {
			s.log.Errorw(sym.Alarm+" Shutdown finished with errors", "error", err)
		}
	}()
	return done
}

// Shutdown triggers the signal handler path programmatically.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	cancel := s.signalCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Health reports per-component status: the health hook's error for
// running components that have one, nil for healthy or hook-less
// running components, ErrNotRunning otherwise.
func (s *Supervisor) Health(ctx context.Context) map[string]error {
	s.mu.Lock()
	names := append([]string(nil), s.names...)
	s.mu.Unlock()

	out := make(map[string]error, len(names))
	for _, name := range names {
		e := s.entry(name)
		if s.state(e) != StateRunning {
			out[name] = errors.Wrapf(errors.ErrNotRunning, "%s is %s", name, s.state(e))
			continue
		}
		if e.Health != nil {
			out[name] = e.Health(ctx)
			continue
		}
		out[name] = nil
	}
	return out
}

// States snapshots every component's lifecycle state.
func (s *Supervisor) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.entries))
	for name, e := range s.entries {
		out[name] = e.state
	}
	return out
}

func (s *Supervisor) entry(name string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[name]
}

func (s *Supervisor) setState(e *entry, st State) {
	s.mu.Lock()
	e.state = st
	s.mu.Unlock()
}

func (s *Supervisor) state(e *entry) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.state
}

// topoOrder runs Kahn's algorithm over the dependency graph. Ties
// break by registration order so the start order is stable. Callers
// hold the lock.
func (s *Supervisor) topoOrder() ([]string, error) {
	indegree := make(map[string]int, len(s.entries))
	dependents := make(map[string][]string, len(s.entries))
	for _, name := range s.names {
		indegree[name] = 0
	}
	for _, name := range s.names {
		for _, dep := range s.entries[name].Deps {
			if _, ok := s.entries[dep]; !ok {
				return nil, errors.Wrapf(errors.ErrUnknownComponent,
					"%s depends on %s", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for _, name := range s.names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(s.entries))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool {
			return s.regIndex(ready[i]) < s.regIndex(ready[j])
		})
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(s.entries) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, errors.Wrapf(errors.ErrDependencyCycle, "components %v", stuck)
	}
	return order, nil
}

func (s *Supervisor) regIndex(name string) int {
	for i, n := range s.names {
		if n == name {
			return i
		}
	}
	return len(s.names)
}
