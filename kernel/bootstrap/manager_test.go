package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	"github.com/nmxmxh/cvstudio/kernel/backend"
	"github.com/nmxmxh/cvstudio/kernel/config"
	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

// countingEngine counts session attempts per backend. When gate is set every
// attempt blocks until the gate closes.
type countingEngine struct {
	mu      sync.Mutex
	calls   map[backend.ID]int
	fail    map[backend.ID]error
	panicOn map[backend.ID]bool
	gate    chan struct{}
	entered chan backend.ID
	threads int
	path    string
}

func newCountingEngine() *countingEngine {
	return &countingEngine{
		calls:   map[backend.ID]int{},
		fail:    map[backend.ID]error{},
		panicOn: map[backend.ID]bool{},
		entered: make(chan backend.ID, 16),
	}
}

func (e *countingEngine) SetAssetPath(p string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.path = p
	return nil
}

func (e *countingEngine) SetThreadCount(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threads = n
	return nil
}

func (e *countingEngine) CreateSession(ctx context.Context, req backend.SessionRequest) error {
	e.mu.Lock()
	e.calls[req.Backend]++
	err, panics, gate := e.fail[req.Backend], e.panicOn[req.Backend], e.gate
	e.mu.Unlock()

	e.entered <- req.Backend
	if gate != nil {
		<-gate
	}
	if panics {
		panic("RuntimeError: unreachable executed")
	}
	return err
}

func (e *countingEngine) Version() string { return "1.17.0-test" }

func (e *countingEngine) count(id backend.ID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

func (e *countingEngine) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

func assetServer(t *testing.T, present ...string) *httptest.Server {
	t.Helper()
	set := map[string]bool{}
	for _, p := range present {
		set[p] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if set[path.Base(r.URL.Path)] {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, srv *httptest.Server, caps kruntime.Static, engine backend.Engine, opts ...Option) *Manager {
	t.Helper()
	o := OptionsFromConfig(config.Default())
	o.AssetBasePath = srv.URL + "/ort/"
	options := append([]Option{
		WithChecker(assets.NewChecker(srv.Client(), utils.NopLogger())),
		WithLogger(utils.NopLogger()),
	}, opts...)
	return New(o, caps, engine, options...)
}

func assertPartition(t *testing.T, s Status) {
	t.Helper()
	all := append(append([]string{}, s.AssetsPresent...), s.AssetsMissing...)
	assert.ElementsMatch(t, assets.Required(), all)
	for _, p := range s.AssetsPresent {
		assert.NotContains(t, s.AssetsMissing, p)
	}
}

func TestDefaultStatusBeforeInitialize(t *testing.T) {
	m := newManager(t, assetServer(t), kruntime.Static{}, newCountingEngine())

	s := m.Status()
	assert.False(t, s.Initialized)
	assert.Equal(t, StateUninitialized, m.State())
	assert.Equal(t, 1, s.ThreadCount)
	assert.False(t, m.IsReady())
}

// TestInitializeSIMDWithoutThreads validates the non-isolated SIMD scenario
func TestInitializeSIMDWithoutThreads(t *testing.T) {
	engine := newCountingEngine()
	srv := assetServer(t, assets.Required()...)
	m := newManager(t, srv, kruntime.Static{SIMD: true, HardwareConcurrency: 8}, engine)

	s := m.Initialize(context.Background())

	assert.True(t, s.Initialized)
	assert.Equal(t, StateReady, s.State)
	assert.Equal(t, backend.SIMD, s.Backend)
	assert.Equal(t, 1, s.ThreadCount)
	assert.Zero(t, engine.count(backend.SIMDThreaded))
	assert.True(t, m.IsReady())
	assert.Equal(t, "1.17.0-test", s.Version)
	assert.Equal(t, srv.URL+"/ort/", engine.path)
	assertPartition(t, s)
}

// TestInitializeThreadedWhenIsolated validates that isolation unlocks threads
func TestInitializeThreadedWhenIsolated(t *testing.T) {
	engine := newCountingEngine()
	caps := kruntime.Static{SIMD: true, Threads: true, CrossOriginIsolated: true, HardwareConcurrency: 12}
	m := newManager(t, assetServer(t, assets.Required()...), caps, engine)

	s := m.Initialize(context.Background())

	assert.Equal(t, backend.SIMDThreaded, s.Backend)
	assert.Equal(t, 4, s.ThreadCount)
	assert.Equal(t, 4, engine.threads)
	assert.True(t, s.CrossOriginIsolated)
}

// TestInitializeAllAssetsMissing validates the all-404 scenario
func TestInitializeAllAssetsMissing(t *testing.T) {
	engine := newCountingEngine()
	m := newManager(t, assetServer(t), kruntime.Static{SIMD: true, Threads: true}, engine)

	s := m.Initialize(context.Background())

	assert.True(t, s.Initialized)
	assert.Equal(t, assets.Required(), s.AssetsMissing)
	assert.Empty(t, s.AssetsPresent)
	assert.Equal(t, backend.Baseline, s.Backend)
	assert.Equal(t, StateDegraded, s.State)
	assert.False(t, m.IsReady())
	assert.Zero(t, engine.total())
}

// TestInitializeBaselineThrows validates that a panicking baseline degrades
// instead of escaping
func TestInitializeBaselineThrows(t *testing.T) {
	engine := newCountingEngine()
	engine.panicOn[backend.Baseline] = true
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{}, engine)

	var s Status
	require.NotPanics(t, func() { s = m.Initialize(context.Background()) })

	assert.True(t, s.Initialized)
	assert.True(t, s.Degraded())
	assert.Equal(t, backend.Baseline, s.Backend)
	assert.Equal(t, []backend.ID{backend.Baseline}, s.FailedBackends())
	assert.True(t, m.IsReady(), "assets are present even though the backend is forced")
}

func TestInitializeFallsBackAfterFailures(t *testing.T) {
	engine := newCountingEngine()
	engine.fail[backend.SIMDThreaded] = errors.New("worker script blocked")
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{SIMD: true, Threads: true}, engine)

	s := m.Initialize(context.Background())

	assert.Equal(t, StateReady, s.State)
	assert.Equal(t, backend.SIMD, s.Backend)
	assert.Equal(t, []backend.ID{backend.SIMDThreaded}, s.FailedBackends())
}

// TestInitializeIsIdempotent validates that a terminal state is never re-probed
func TestInitializeIsIdempotent(t *testing.T) {
	engine := newCountingEngine()
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{SIMD: true}, engine)

	first := m.Initialize(context.Background())
	second := m.Initialize(context.Background())

	assert.Equal(t, first, second)
	assert.Equal(t, 1, engine.total())
}

// TestStatusIsACopy validates that callers cannot mutate the shared snapshot
func TestStatusIsACopy(t *testing.T) {
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{SIMD: true}, newCountingEngine())
	s := m.Initialize(context.Background())

	s.AssetsPresent[0] = "tampered"
	s.Attempts[0].Reason = "tampered"
	s.Backend = "tampered"

	fresh := m.Status()
	assert.Equal(t, assets.Required()[0], fresh.AssetsPresent[0])
	assert.NotEqual(t, "tampered", fresh.Attempts[0].Reason)
	assert.Equal(t, backend.SIMD, fresh.Backend)
}

// TestResetReprobes validates that Reset leaks no state into the next run
func TestResetReprobes(t *testing.T) {
	engine := newCountingEngine()
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{SIMD: true}, engine)

	first := m.Initialize(context.Background())
	m.Reset()

	assert.Equal(t, StateUninitialized, m.State())
	assert.False(t, m.Status().Initialized)
	assert.Empty(t, m.Status().Attempts)

	second := m.Initialize(context.Background())
	assert.True(t, second.Initialized)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 2, engine.count(backend.SIMD))
}

// TestConcurrentInitializeSingleFlight validates that simultaneous callers
// share one probe sequence
func TestConcurrentInitializeSingleFlight(t *testing.T) {
	engine := newCountingEngine()
	engine.gate = make(chan struct{})
	engine.fail[backend.SIMDThreaded] = errors.New("threads unavailable")
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{SIMD: true, Threads: true}, engine)

	const callers = 8
	results := make([]Status, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Initialize(context.Background())
		}(i)
	}

	select {
	case id := <-engine.entered:
		assert.Equal(t, backend.SIMDThreaded, id)
	case <-time.After(5 * time.Second):
		t.Fatal("probe never reached the engine")
	}
	assert.Equal(t, StateProbing, m.State())
	assert.False(t, m.Status().Initialized, "no partial snapshot while probing")

	close(engine.gate)
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, backend.SIMD, results[0].Backend)
	assert.Equal(t, 1, engine.count(backend.SIMDThreaded))
	assert.Equal(t, 1, engine.count(backend.SIMD))
	assert.Zero(t, engine.count(backend.Baseline))
}

// TestInitializeAbandonedWait validates that a caller's deadline returns the
// current snapshot while the shared sequence carries on
func TestInitializeAbandonedWait(t *testing.T) {
	engine := newCountingEngine()
	engine.gate = make(chan struct{})
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{}, engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Status, 1)
	go func() { done <- m.Initialize(ctx) }()

	<-engine.entered
	cancel()
	s := <-done
	assert.False(t, s.Initialized)

	close(engine.gate)
	final := m.Initialize(context.Background())
	assert.True(t, final.Initialized)
	assert.Equal(t, backend.Baseline, final.Backend)
	assert.Equal(t, 1, engine.total())
}

// TestResetDuringProbeDiscardsResult validates that a stale sequence never
// publishes over a reset
func TestResetDuringProbeDiscardsResult(t *testing.T) {
	engine := newCountingEngine()
	engine.gate = make(chan struct{})
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{}, engine)

	done := make(chan Status, 1)
	go func() { done <- m.Initialize(context.Background()) }()

	<-engine.entered
	m.Reset()
	close(engine.gate)

	stale := <-done
	assert.False(t, stale.Initialized)
	assert.False(t, m.Status().Initialized)

	fresh := m.Initialize(context.Background())
	<-engine.entered
	assert.True(t, fresh.Initialized)
	assert.Equal(t, 2, engine.count(backend.Baseline))
}

func TestObserversReceiveSnapshots(t *testing.T) {
	var mu sync.Mutex
	var seen []Status
	observer := func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}
	panicky := func(Status) { panic("observer bug") }

	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{SIMD: true}, newCountingEngine(),
		WithObserver(panicky), WithObserver(observer))

	m.Initialize(context.Background())
	m.Reset()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, StateReady, seen[0].State)
	assert.Equal(t, StateUninitialized, seen[1].State)
}

func TestNilEngineDegrades(t *testing.T) {
	m := newManager(t, assetServer(t, assets.Required()...), kruntime.Static{SIMD: true}, nil)

	s := m.Initialize(context.Background())
	assert.True(t, s.Degraded())
	assert.Equal(t, backend.Baseline, s.Backend)
	assert.NotEmpty(t, s.ConfigErrors)
}

func TestLogDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	logger := utils.NewLogger(utils.LoggerConfig{Level: utils.INFO, Output: &buf, Component: "bootstrap"})
	m := newManager(t, assetServer(t, assets.BaselineBinary), kruntime.Static{SIMD: true, HardwareConcurrency: 4}, newCountingEngine(),
		WithLogger(logger))

	m.Initialize(context.Background())
	buf.Reset()
	m.LogDiagnostics()

	out := buf.String()
	assert.Contains(t, out, "Runtime diagnostics")
	assert.Contains(t, out, `backend="wasm"`)
	assert.Contains(t, out, "cross_origin_isolated=false")
	assert.Contains(t, out, "shared_array_buffer=false")
	assert.Contains(t, out, `outcome="skipped_asset"`)
}

// TestZeroOptionsAllAssetsMissingNotReady validates that a manager built from
// bare Options still requires an asset for readiness
func TestZeroOptionsAllAssetsMissingNotReady(t *testing.T) {
	srv := assetServer(t)
	m := New(Options{AssetBasePath: srv.URL + "/ort/"}, kruntime.Static{SIMD: true}, newCountingEngine(),
		WithChecker(assets.NewChecker(srv.Client(), utils.NopLogger())),
		WithLogger(utils.NopLogger()))

	s := m.Initialize(context.Background())

	assert.True(t, s.Initialized)
	assert.Equal(t, assets.Required(), s.AssetsMissing)
	assert.Equal(t, StateDegraded, s.State)
	assert.False(t, m.IsReady())
	assert.False(t, m.Diagnostics().Ready)
}
