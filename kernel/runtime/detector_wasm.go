//go:build js && wasm

package runtime

import (
	"context"
	"syscall/js"
)

// BrowserDetector reads capability facts from the page's global scope
type BrowserDetector struct {
	global js.Value
}

func NewBrowserDetector() *BrowserDetector {
	return &BrowserDetector{global: js.Global()}
}

// DetectSIMD validates SIMDProbeModule with WebAssembly.validate
func (d *BrowserDetector) DetectSIMD(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	wasm := d.global.Get("WebAssembly")
	if !wasm.Truthy() || wasm.Get("validate").Type() != js.TypeFunction {
		return false
	}
	bytes := d.global.Get("Uint8Array").New(len(SIMDProbeModule))
	js.CopyBytesToJS(bytes, SIMDProbeModule)
	return wasm.Call("validate", bytes).Truthy()
}

func (d *BrowserDetector) DetectThreadEligibility(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	env := d.Environment()
	return ThreadEligible(env.SharedArrayBuffer, env.Atomics, env.Workers)
}

func (d *BrowserDetector) DetectCrossOriginIsolation(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	v := d.global.Get("crossOriginIsolated")
	return v.Type() == js.TypeBoolean && v.Bool()
}

// Environment reports the raw globals behind the capability answers
func (d *BrowserDetector) Environment() Environment {
	env := Environment{
		Platform:          "browser",
		SharedArrayBuffer: d.defined("SharedArrayBuffer"),
		Atomics:           d.defined("Atomics"),
		Workers:           d.defined("Worker"),
	}
	if v := d.global.Get("crossOriginIsolated"); v.Type() == js.TypeBoolean {
		env.CrossOriginIsolated = v.Bool()
	}

	navigator := d.global.Get("navigator")
	if navigator.Truthy() {
		if cores := navigator.Get("hardwareConcurrency"); cores.Type() == js.TypeNumber {
			env.HardwareConcurrency = cores.Int()
		}
		if ua := navigator.Get("userAgent"); ua.Type() == js.TypeString {
			env.Platform = "browser: " + ua.String()
		}
	}
	return env
}

func (d *BrowserDetector) defined(name string) bool {
	v := d.global.Get(name)
	return !v.IsUndefined() && !v.IsNull()
}
