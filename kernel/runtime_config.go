//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/nmxmxh/cvstudio/kernel/config"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// loadRuntimeConfig overlays globalThis.__STUDIO_RUNTIME_CONFIG__ onto the
// defaults. An invalid overlay is logged and the defaults are kept.
func loadRuntimeConfig(logger *utils.Logger) config.Config {
	cfg := config.Default()
	cfg.Logging.Colorize = false

	global := js.Global()
	raw := global.Get("__STUDIO_RUNTIME_CONFIG__")
	if raw.Type() == js.TypeObject {
		candidate := cfg
		applyRuntimeOverrides(&candidate, raw)
		if err := candidate.Validate(); err != nil {
			logger.Warn("Ignoring page runtime config", utils.Err(err))
		} else {
			cfg = candidate
		}
	}

	if href := global.Get("location").Get("href"); href.Type() == js.TypeString {
		cfg.Assets.BasePath = config.ResolveBasePath(cfg.Assets.BasePath, href.String())
	}
	return cfg
}

func applyRuntimeOverrides(cfg *config.Config, raw js.Value) {
	if v := raw.Get("basePath"); v.Type() == js.TypeString {
		cfg.Assets.BasePath = v.String()
	}
	if v := raw.Get("requiredAssets"); isArray(v) {
		cfg.Assets.Required = stringList(v)
	}
	if v := raw.Get("minimumViableAssets"); v.Type() == js.TypeNumber {
		cfg.Assets.MinimumViable = v.Int()
	}
	if v := raw.Get("candidates"); isArray(v) {
		cfg.Runtime.Candidates = stringList(v)
	}
	if v := raw.Get("maxThreads"); v.Type() == js.TypeNumber {
		cfg.Runtime.MaxThreads = v.Int()
	}
	if v := raw.Get("probeModel"); v.Type() == js.TypeString {
		cfg.Runtime.ProbeModel = v.String()
	}
	if v := raw.Get("logLevel"); v.Type() == js.TypeString {
		cfg.Logging.Level = v.String()
	}
}

func isArray(v js.Value) bool {
	return v.Type() == js.TypeObject && js.Global().Get("Array").Call("isArray", v).Bool()
}

func stringList(v js.Value) []string {
	out := make([]string, 0, v.Length())
	for i := 0; i < v.Length(); i++ {
		if item := v.Index(i); item.Type() == js.TypeString {
			out = append(out, item.String())
		}
	}
	return out
}
