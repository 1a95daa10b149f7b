package runtime

import (
	"context"

	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// Capabilities holds the platform facts the backend probe decides on
type Capabilities struct {
	SIMD                bool // probe module validated
	Threads             bool // SharedArrayBuffer, Atomics and Worker all present
	CrossOriginIsolated bool // page confirmed cross-origin isolated
	HardwareConcurrency int  // logical cores reported by the host, 0 if unknown
}

// Provider answers the three capability queries. Implementations must not
// block indefinitely; a failed query reports false.
type Provider interface {
	DetectSIMD(ctx context.Context) bool
	DetectThreadEligibility(ctx context.Context) bool
	DetectCrossOriginIsolation(ctx context.Context) bool
}

// Environment carries raw host facts for diagnostics only.
type Environment struct {
	Platform            string
	SharedArrayBuffer   bool
	Atomics             bool
	Workers             bool
	CrossOriginIsolated bool
	HardwareConcurrency int
	CPUFeatures         []string
}

// EnvironmentReporter is implemented by providers that can describe the host.
type EnvironmentReporter interface {
	Environment() Environment
}

// Detect queries the provider. A panicking query is logged and read as false.
func Detect(ctx context.Context, p Provider, logger *utils.Logger) Capabilities {
	if logger == nil {
		logger = utils.NopLogger()
	}
	if p == nil {
		logger.Warn("Capability provider missing, assuming baseline environment")
		return Capabilities{}
	}

	caps := Capabilities{
		SIMD:                safeQuery(logger, "simd", func() bool { return p.DetectSIMD(ctx) }),
		Threads:             safeQuery(logger, "threads", func() bool { return p.DetectThreadEligibility(ctx) }),
		CrossOriginIsolated: safeQuery(logger, "isolation", func() bool { return p.DetectCrossOriginIsolation(ctx) }),
	}
	if reporter, ok := p.(EnvironmentReporter); ok {
		var env Environment
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("Environment report failed", utils.Err(utils.RecoveredError(r, "environment")))
				}
			}()
			env = reporter.Environment()
		}()
		caps.HardwareConcurrency = env.HardwareConcurrency
	}

	logger.Info("Capabilities detected",
		utils.Bool("simd", caps.SIMD),
		utils.Bool("threads", caps.Threads),
		utils.Bool("isolated", caps.CrossOriginIsolated),
		utils.Int("cores", caps.HardwareConcurrency),
	)
	return caps
}

func safeQuery(logger *utils.Logger, name string, query func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Capability query failed",
				utils.String("capability", name),
				utils.Err(utils.RecoveredError(r, name)))
			result = false
		}
	}()
	return query()
}

// Static is a Provider with fixed answers.
type Static struct {
	SIMD                bool
	Threads             bool
	CrossOriginIsolated bool
	HardwareConcurrency int
}

func (s Static) DetectSIMD(context.Context) bool                 { return s.SIMD }
func (s Static) DetectThreadEligibility(context.Context) bool    { return s.Threads }
func (s Static) DetectCrossOriginIsolation(context.Context) bool { return s.CrossOriginIsolated }

func (s Static) Environment() Environment {
	return Environment{
		Platform:            "static",
		SharedArrayBuffer:   s.Threads,
		Atomics:             s.Threads,
		Workers:             s.Threads,
		CrossOriginIsolated: s.CrossOriginIsolated,
		HardwareConcurrency: s.HardwareConcurrency,
	}
}
