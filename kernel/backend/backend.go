// Package backend selects and configures the execution backend of the
// inference runtime.
package backend

import (
	"context"
	"sort"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// ID names an execution backend
type ID string

const (
	Baseline     ID = "wasm"
	SIMD         ID = "wasm-simd"
	SIMDThreaded ID = "wasm-simd-threaded"
)

var (
	ErrUnknownBackend = utils.NewError("unknown backend")
	ErrAssetMissing   = utils.NewError("backend asset missing")
	ErrNoEngine       = utils.NewError("no runtime engine")
)

// rank orders backends by capability, highest first.
var rank = map[ID]int{
	SIMDThreaded: 3,
	SIMD:         2,
	Baseline:     1,
}

// DefaultCandidates returns every backend in descending capability order.
func DefaultCandidates() []ID {
	return []ID{SIMDThreaded, SIMD, Baseline}
}

// Valid reports whether id is one of the known backends.
func (id ID) Valid() bool {
	_, ok := rank[id]
	return ok
}

func (id ID) RequiresSIMD() bool {
	return id == SIMD || id == SIMDThreaded
}

func (id ID) RequiresThreads() bool {
	return id == SIMDThreaded
}

// Asset returns the runtime binary the backend loads.
func (id ID) Asset() string {
	switch id {
	case SIMDThreaded:
		return assets.SIMDThreadedBinary
	case SIMD:
		return assets.SIMDBinary
	case Baseline:
		return assets.BaselineBinary
	}
	return ""
}

func (id ID) String() string {
	return string(id)
}

// Parse maps a name to a backend ID.
func Parse(name string) (ID, error) {
	id := ID(name)
	if !id.Valid() {
		return "", utils.WrapError(ErrUnknownBackend, name)
	}
	return id, nil
}

// Normalize drops unknown and duplicate IDs and sorts the rest into
// descending capability order.
func Normalize(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i]] > rank[out[j]] })
	return out
}

// SessionRequest describes one instantiation attempt.
type SessionRequest struct {
	Backend       ID
	AssetBasePath string
	Threads       int // pool size the session must use, always >= 1
}

// Engine is the underlying inference runtime.
type Engine interface {
	// SetAssetPath sets where the runtime loads its binaries from.
	SetAssetPath(path string) error
	// SetThreadCount sets the runtime's worker thread count.
	SetThreadCount(n int) error
	// CreateSession constructs and releases a probe session on the backend.
	CreateSession(ctx context.Context, req SessionRequest) error
	// Version reports the runtime version, "" if unknown.
	Version() string
}
