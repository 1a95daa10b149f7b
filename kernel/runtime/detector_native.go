//go:build !js || !wasm

package runtime

import (
	"context"
	"fmt"
	"net/http"
	goruntime "runtime"
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// NativeDetector answers capability queries for a native host. SIMD is
// validated with wasmer; cross-origin isolation is read from the response
// headers of the page the deployment serves.
type NativeDetector struct {
	isolationURL string
	client       *http.Client

	hasVectorISA func() bool
	validate     func([]byte) error

	isolated atomic.Bool
}

// NewNativeDetector creates a detector. An empty isolationURL means isolation
// can never be confirmed.
func NewNativeDetector(isolationURL string, client *http.Client) *NativeDetector {
	if client == nil {
		client = http.DefaultClient
	}
	return &NativeDetector{
		isolationURL: isolationURL,
		client:       client,
		hasVectorISA: hostVectorISA,
		validate:     wasmerValidate,
	}
}

func (d *NativeDetector) DetectSIMD(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if !d.hasVectorISA() {
		return false
	}
	return d.validate(SIMDProbeModule) == nil
}

// DetectThreadEligibility is always true natively: goroutines share memory
// and sync/atomic stands in for Atomics.
func (d *NativeDetector) DetectThreadEligibility(ctx context.Context) bool {
	return ThreadEligible(true, true, true)
}

func (d *NativeDetector) DetectCrossOriginIsolation(ctx context.Context) bool {
	if d.isolationURL == "" {
		d.isolated.Store(false)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.isolationURL, nil)
	if err != nil {
		d.isolated.Store(false)
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.isolated.Store(false)
		return false
	}
	resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300 && IsolationHeaders(resp.Header)
	d.isolated.Store(ok)
	return ok
}

func (d *NativeDetector) Environment() Environment {
	return Environment{
		Platform:            fmt.Sprintf("%s/%s %s", goruntime.GOOS, goruntime.GOARCH, cpuid.CPU.BrandName),
		SharedArrayBuffer:   true,
		Atomics:             true,
		Workers:             true,
		CrossOriginIsolated: d.isolated.Load(),
		HardwareConcurrency: goruntime.NumCPU(),
		CPUFeatures:         cpuid.CPU.FeatureSet(),
	}
}

func hostVectorISA() bool {
	return cpuid.CPU.Supports(cpuid.SSE4) || cpuid.CPU.Supports(cpuid.ASIMD)
}

func wasmerValidate(module []byte) error {
	store := wasmer.NewStore(wasmer.NewEngine())
	return wasmer.ValidateModule(store, module)
}
