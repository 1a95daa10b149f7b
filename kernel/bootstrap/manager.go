// Package bootstrap owns the one-time initialization of the inference
// runtime and publishes its outcome as an immutable Status snapshot.
package bootstrap

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	"github.com/nmxmxh/cvstudio/kernel/backend"
	"github.com/nmxmxh/cvstudio/kernel/config"
	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// Options fixes what a Manager probes for.
type Options struct {
	AssetBasePath       string
	RequiredAssets      []string
	Candidates          []backend.ID
	MinimumViableAssets int // at least 1; lower values are raised
	MaxThreads          int
}

// OptionsFromConfig maps the config file onto manager options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		AssetBasePath:       cfg.Assets.BasePath,
		RequiredAssets:      append([]string(nil), cfg.Assets.Required...),
		Candidates:          cfg.Backends(),
		MinimumViableAssets: cfg.Assets.MinimumViable,
		MaxThreads:          cfg.Runtime.MaxThreads,
	}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithChecker replaces the default asset checker.
func WithChecker(c *assets.Checker) Option {
	return func(m *Manager) { m.checker = c }
}

func WithLogger(l *utils.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers a callback run after every published snapshot,
// including the default snapshot installed by Reset.
func WithObserver(fn func(Status)) Option {
	return func(m *Manager) { m.observers = append(m.observers, fn) }
}

// Manager runs the probe sequence at most once per generation and serves
// the resulting snapshot. Create one per process and hand it to consumers.
type Manager struct {
	opts      Options
	provider  kruntime.Provider
	engine    backend.Engine
	checker   *assets.Checker
	logger    *utils.Logger
	observers []func(Status)

	flight singleflight.Group

	mu         sync.Mutex // guards generation and publication order
	generation uint64
	status     atomic.Pointer[Status]
	state      atomic.Int32
}

// New creates a Manager in the Uninitialized state.
func New(opts Options, provider kruntime.Provider, engine backend.Engine, options ...Option) *Manager {
	if len(opts.RequiredAssets) == 0 {
		opts.RequiredAssets = assets.Required()
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = backend.DefaultCandidates()
	}
	if opts.MinimumViableAssets < 1 {
		opts.MinimumViableAssets = 1
	}

	m := &Manager{
		opts:     opts,
		provider: provider,
		engine:   engine,
	}
	for _, o := range options {
		o(m)
	}
	if m.logger == nil {
		m.logger = utils.DefaultLogger("bootstrap")
	}
	if m.checker == nil {
		m.checker = assets.NewChecker(nil, m.logger)
	}

	m.status.Store(defaultStatus(opts.AssetBasePath))
	m.state.Store(int32(StateUninitialized))
	return m
}

// Initialize runs the probe sequence, or joins the one in flight, and
// returns the resulting snapshot. Once Ready or Degraded it returns the
// published snapshot without probing again. It never fails: a caller whose
// ctx ends before the sequence completes receives the current snapshot.
func (m *Manager) Initialize(ctx context.Context) Status {
	if s := m.status.Load(); s.State.Terminal() {
		return s.Clone()
	}

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	// The sequence must not die with the first caller's context.
	runCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return m.run(runCtx, gen), nil
	})

	select {
	case res := <-ch:
		return res.Val.(*Status).Clone()
	case <-ctx.Done():
		m.logger.Warn("Initialization wait abandoned", utils.Err(ctx.Err()))
		return m.Status()
	}
}

func (m *Manager) run(ctx context.Context, gen uint64) *Status {
	m.mu.Lock()
	// A late joiner may start a flight after the previous one published.
	if cur := m.status.Load(); gen != m.generation || cur.Initialized {
		m.mu.Unlock()
		return cur
	}
	m.state.Store(int32(StateProbing))
	m.mu.Unlock()

	runID := utils.GenerateID()
	log := m.logger.With(utils.String("run", runID))
	base := m.opts.AssetBasePath
	log.Info("Setting up inference runtime", utils.String("assets", base))

	caps := kruntime.Detect(ctx, m.provider, log)
	found := m.checker.Check(ctx, base, m.opts.RequiredAssets)
	sel := backend.NewProbe(m.engine, log).Select(ctx, backend.Request{
		Candidates:    m.opts.Candidates,
		Capabilities:  caps,
		Assets:        found,
		AssetBasePath: base,
		MaxThreads:    m.opts.MaxThreads,
	})
	applied := backend.NewConfigurator(m.engine, m.opts.MaxThreads, log).Apply(sel.Backend, caps, base)

	state := StateReady
	if sel.Degraded {
		state = StateDegraded
	}

	st := &Status{
		Backend:             sel.Backend,
		ThreadCount:         applied.ThreadCount,
		AssetBasePath:       applied.AssetBasePath,
		AssetsPresent:       found.Present,
		AssetsMissing:       found.Missing,
		Initialized:         true,
		State:               state,
		Version:             m.engineVersion(),
		SIMD:                caps.SIMD,
		Threads:             caps.Threads,
		CrossOriginIsolated: caps.CrossOriginIsolated,
		Attempts:            sel.Attempts,
		ConfigErrors:        applied.Errors,
		RunID:               runID,
		CompletedAt:         time.Now(),
	}

	if !m.publish(gen, st) {
		log.Warn("Discarding probe result after reset")
		return m.status.Load()
	}

	fields := []utils.Field{
		utils.String("backend", st.Backend.String()),
		utils.String("state", st.State.String()),
		utils.Int("threads", st.ThreadCount),
		utils.Int("assets_missing", len(st.AssetsMissing)),
	}
	if st.Degraded() {
		log.Warn("Inference runtime degraded, falling back to single-thread wasm", fields...)
	} else {
		log.Info("Inference runtime ready", fields...)
	}
	return st
}

// publish installs st unless a Reset happened since gen was read.
func (m *Manager) publish(gen uint64, st *Status) bool {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return false
	}
	m.status.Store(st)
	m.state.Store(int32(st.State))
	observers := m.observers
	m.mu.Unlock()

	m.notify(observers, st)
	return true
}

func (m *Manager) notify(observers []func(Status), st *Status) {
	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Status observer failed", utils.Err(utils.RecoveredError(r, "observer")))
				}
			}()
			fn(st.Clone())
		}()
	}
}

func (m *Manager) engineVersion() (v string) {
	if m.engine == nil {
		return ""
	}
	defer func() {
		if recover() != nil {
			v = ""
		}
	}()
	return m.engine.Version()
}

// Status returns a copy of the current snapshot.
func (m *Manager) Status() Status {
	return m.status.Load().Clone()
}

// State returns the lifecycle state, including Probing, which snapshots
// never show.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsReady reports whether initialization completed with enough assets present.
func (m *Manager) IsReady() bool {
	s := m.status.Load()
	return s.Initialized && len(s.AssetsPresent) >= m.opts.MinimumViableAssets
}

// Reset returns the manager to Uninitialized. A sequence still in flight
// completes but its result is discarded.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.generation++
	st := defaultStatus(m.opts.AssetBasePath)
	m.status.Store(st)
	m.state.Store(int32(StateUninitialized))
	observers := m.observers
	m.mu.Unlock()

	m.logger.Info("Inference runtime reset")
	m.notify(observers, st)
}
