package bootstrap

import (
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// Diagnostics is the operator view: the snapshot plus raw host facts.
type Diagnostics struct {
	Status         Status
	State          State
	Ready          bool
	Environment    kruntime.Environment
	HasEnvironment bool
}

// Diagnostics collects the current snapshot and environment facts.
func (m *Manager) Diagnostics() Diagnostics {
	d := Diagnostics{
		Status: m.Status(),
		State:  m.State(),
		Ready:  m.IsReady(),
	}
	if reporter, ok := m.provider.(kruntime.EnvironmentReporter); ok {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("Environment report failed", utils.Err(utils.RecoveredError(r, "environment")))
				}
			}()
			d.Environment = reporter.Environment()
			d.HasEnvironment = true
		}()
	}
	return d
}

// LogDiagnostics writes the diagnostics to the manager's logger.
func (m *Manager) LogDiagnostics() {
	d := m.Diagnostics()
	s := d.Status

	m.logger.Info("Runtime diagnostics",
		utils.String("state", d.State.String()),
		utils.Bool("ready", d.Ready),
		utils.Bool("initialized", s.Initialized),
		utils.String("backend", s.Backend.String()),
		utils.String("version", s.Version),
		utils.Int("threads", s.ThreadCount),
		utils.String("assets", s.AssetBasePath),
		utils.Strings("present", s.AssetsPresent),
		utils.Strings("missing", s.AssetsMissing),
		utils.Bool("simd", s.SIMD),
		utils.Bool("thread_eligible", s.Threads),
	)
	for _, a := range s.Attempts {
		m.logger.Info("Runtime diagnostics: backend attempt",
			utils.String("backend", a.Backend.String()),
			utils.String("outcome", a.Outcome.String()),
			utils.String("reason", a.Reason),
			utils.Duration("elapsed", a.Elapsed))
	}
	for _, e := range s.ConfigErrors {
		m.logger.Warn("Runtime diagnostics: configuration error", utils.String("error", e))
	}
	if d.HasEnvironment {
		env := d.Environment
		m.logger.Info("Runtime diagnostics: environment",
			utils.String("platform", env.Platform),
			utils.Bool("cross_origin_isolated", env.CrossOriginIsolated),
			utils.Bool("shared_array_buffer", env.SharedArrayBuffer),
			utils.Bool("atomics", env.Atomics),
			utils.Bool("workers", env.Workers),
			utils.Int("hardware_concurrency", env.HardwareConcurrency),
			utils.Strings("cpu_features", env.CPUFeatures))
	}
}

// Struct exports the diagnostics as a protobuf Struct. Its AsMap form is
// what page scripts receive.
func (d Diagnostics) Struct() (*structpb.Struct, error) {
	s := d.Status

	attempts := make([]interface{}, 0, len(s.Attempts))
	for _, a := range s.Attempts {
		attempts = append(attempts, map[string]interface{}{
			"backend":   a.Backend.String(),
			"outcome":   a.Outcome.String(),
			"reason":    a.Reason,
			"elapsedMs": float64(a.Elapsed) / float64(time.Millisecond),
		})
	}

	completed := ""
	if !s.CompletedAt.IsZero() {
		completed = s.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	fields := map[string]interface{}{
		"backend":             s.Backend.String(),
		"threadCount":         s.ThreadCount,
		"assetBasePath":       s.AssetBasePath,
		"assetsPresent":       list(s.AssetsPresent),
		"assetsMissing":       list(s.AssetsMissing),
		"initialized":         s.Initialized,
		"state":               d.State.String(),
		"ready":               d.Ready,
		"degraded":            s.Degraded(),
		"version":             s.Version,
		"supportsSimd":        s.SIMD,
		"supportsThreads":     s.Threads,
		"crossOriginIsolated": s.CrossOriginIsolated,
		"attempts":            attempts,
		"configErrors":        list(s.ConfigErrors),
		"runId":               s.RunID,
		"completedAt":         completed,
	}
	if d.HasEnvironment {
		env := d.Environment
		fields["environment"] = map[string]interface{}{
			"platform":            env.Platform,
			"sharedArrayBuffer":   env.SharedArrayBuffer,
			"atomics":             env.Atomics,
			"workers":             env.Workers,
			"crossOriginIsolated": env.CrossOriginIsolated,
			"hardwareConcurrency": env.HardwareConcurrency,
			"cpuFeatures":         list(env.CPUFeatures),
		}
	}
	return structpb.NewStruct(fields)
}

// JSON renders the diagnostics with protojson.
func (d Diagnostics) JSON() ([]byte, error) {
	st, err := d.Struct()
	if err != nil {
		return nil, utils.WrapError(err, "encode diagnostics")
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
}

func list(in []string) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
