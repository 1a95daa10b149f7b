package backend

import (
	"context"
	"time"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// Outcome is what happened to one candidate during a probe
type Outcome int

const (
	OutcomeSelected Outcome = iota
	OutcomeFailed
	OutcomeSkippedCapability
	OutcomeSkippedAsset
)

var outcomeNames = map[Outcome]string{
	OutcomeSelected:          "selected",
	OutcomeFailed:            "failed",
	OutcomeSkippedCapability: "skipped_capability",
	OutcomeSkippedAsset:      "skipped_asset",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Attempt records one candidate's outcome.
type Attempt struct {
	Backend ID
	Outcome Outcome
	Reason  string
	Elapsed time.Duration
}

// Selection is the probe result. Degraded means no candidate could be
// instantiated and Backend is the forced baseline.
type Selection struct {
	Backend  ID
	Degraded bool
	Attempts []Attempt
}

// Clone returns a deep copy.
func (s Selection) Clone() Selection {
	s.Attempts = append([]Attempt(nil), s.Attempts...)
	return s
}

// Request carries the facts a probe decides on.
type Request struct {
	Candidates    []ID
	Capabilities  kruntime.Capabilities
	Assets        assets.Result
	AssetBasePath string
	MaxThreads    int // cap passed to ThreadCount; <= 0 means no cap
}

// Probe instantiates candidates one at a time until one succeeds
type Probe struct {
	engine Engine
	logger *utils.Logger
}

func NewProbe(engine Engine, logger *utils.Logger) *Probe {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Probe{engine: engine, logger: logger}
}

// Select walks the candidates in descending capability order. Candidates the
// environment cannot run, or whose binary is missing, are skipped without an
// attempt. A failed attempt is recorded and never retried. When every
// candidate fails the baseline is returned with Degraded set.
func (p *Probe) Select(ctx context.Context, req Request) Selection {
	candidates := Normalize(req.Candidates)
	if len(candidates) == 0 {
		candidates = DefaultCandidates()
	}

	sel := Selection{Attempts: make([]Attempt, 0, len(candidates))}
	for _, id := range candidates {
		if reason, ok := compatible(id, req.Capabilities); !ok {
			sel.Attempts = append(sel.Attempts, Attempt{Backend: id, Outcome: OutcomeSkippedCapability, Reason: reason})
			p.logger.Debug("Backend skipped", utils.String("backend", id.String()), utils.String("reason", reason))
			continue
		}
		if !req.Assets.Has(id.Asset()) {
			reason := utils.WrapError(ErrAssetMissing, id.Asset()).Error()
			sel.Attempts = append(sel.Attempts, Attempt{Backend: id, Outcome: OutcomeSkippedAsset, Reason: reason})
			p.logger.Debug("Backend skipped", utils.String("backend", id.String()), utils.String("reason", reason))
			continue
		}

		start := time.Now()
		err := p.instantiate(ctx, SessionRequest{
			Backend:       id,
			AssetBasePath: req.AssetBasePath,
			Threads:       ThreadCount(id, req.Capabilities, req.MaxThreads),
		})
		elapsed := time.Since(start)
		if err != nil {
			sel.Attempts = append(sel.Attempts, Attempt{Backend: id, Outcome: OutcomeFailed, Reason: err.Error(), Elapsed: elapsed})
			p.logger.Warn("Backend failed session test",
				utils.String("backend", id.String()),
				utils.Duration("elapsed", elapsed),
				utils.Err(err))
			continue
		}

		sel.Attempts = append(sel.Attempts, Attempt{Backend: id, Outcome: OutcomeSelected, Elapsed: elapsed})
		sel.Backend = id
		p.logger.Info("Backend initialized", utils.String("backend", id.String()), utils.Duration("elapsed", elapsed))
		return sel
	}

	sel.Backend = Baseline
	sel.Degraded = true
	p.logger.Warn("No backend initialized, forcing baseline",
		utils.String("backend", Baseline.String()),
		utils.Int("candidates", len(candidates)))
	return sel
}

func (p *Probe) instantiate(ctx context.Context, req SessionRequest) (err error) {
	if p.engine == nil {
		return ErrNoEngine
	}
	defer func() {
		if r := recover(); r != nil {
			err = utils.RecoveredError(r, "create session")
		}
	}()
	return p.engine.CreateSession(ctx, req)
}

func compatible(id ID, caps kruntime.Capabilities) (string, bool) {
	if id.RequiresThreads() && !caps.Threads {
		return "threads ineligible", false
	}
	if id.RequiresSIMD() && !caps.SIMD {
		return "simd unsupported", false
	}
	return "", true
}
