// Package assets checks that the inference runtime's binaries are reachable
// and serves them during development.
package assets

// Runtime binaries served next to the application.
const (
	BaselineBinary     = "ort-wasm.wasm"
	SIMDBinary         = "ort-wasm-simd.wasm"
	ThreadedBinary     = "ort-wasm-threaded.wasm"
	SIMDThreadedBinary = "ort-wasm-simd-threaded.wasm"
)

var required = []string{
	BaselineBinary,
	SIMDBinary,
	ThreadedBinary,
	SIMDThreadedBinary,
}

// Required returns the full list of runtime assets a deployment must carry.
func Required() []string {
	out := make([]string, len(required))
	copy(out, required)
	return out
}

// dedupe keeps the first occurrence of every name, preserving order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
