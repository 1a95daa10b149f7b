package bootstrap

import (
	"time"

	"github.com/nmxmxh/cvstudio/kernel/backend"
)

// Status is the published runtime snapshot. Values handed out by a Manager
// are copies; mutating them does not affect other readers.
type Status struct {
	Backend       backend.ID
	ThreadCount   int
	AssetBasePath string
	AssetsPresent []string
	AssetsMissing []string
	Initialized   bool
	State         State

	Version             string
	SIMD                bool
	Threads             bool
	CrossOriginIsolated bool

	Attempts     []backend.Attempt
	ConfigErrors []string
	RunID        string
	CompletedAt  time.Time
}

// defaultStatus is what readers see before the first probe completes.
func defaultStatus(basePath string) *Status {
	return &Status{
		ThreadCount:   1,
		AssetBasePath: basePath,
		AssetsPresent: []string{},
		AssetsMissing: []string{},
		State:         StateUninitialized,
	}
}

// Clone returns a deep copy.
func (s Status) Clone() Status {
	s.AssetsPresent = append([]string{}, s.AssetsPresent...)
	s.AssetsMissing = append([]string{}, s.AssetsMissing...)
	s.Attempts = append([]backend.Attempt(nil), s.Attempts...)
	s.ConfigErrors = append([]string(nil), s.ConfigErrors...)
	return s
}

// Degraded reports whether the backend was forced after every candidate failed.
func (s Status) Degraded() bool {
	return s.State == StateDegraded
}

// FailedBackends lists the candidates whose instantiation failed.
func (s Status) FailedBackends() []backend.ID {
	var out []backend.ID
	for _, a := range s.Attempts {
		if a.Outcome == backend.OutcomeFailed {
			out = append(out, a.Backend)
		}
	}
	return out
}
