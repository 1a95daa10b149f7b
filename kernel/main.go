//go:build js && wasm

package main

import (
	"runtime/debug"
	"syscall/js"

	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// Global singleton
var studioInstance *Studio

func main() {
	studioInstance = NewStudio()

	api := js.Global().Get("Object").New()
	api.Set("setup", js.FuncOf(jsSetup))
	api.Set("status", js.FuncOf(jsStatus))
	api.Set("isReady", js.FuncOf(jsIsReady))
	api.Set("logDiagnostics", js.FuncOf(jsLogDiagnostics))
	api.Set("reset", js.FuncOf(jsReset))
	js.Global().Set("studioRuntime", api)

	// Register Shutdown Hook (Main thread only)
	window := js.Global().Get("window")
	if !window.IsUndefined() && !window.IsNull() {
		window.Call("addEventListener", "beforeunload", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			studioInstance.Shutdown()
			return nil
		}))
	}

	studioInstance.logger.Info("Studio runtime exported",
		utils.String("assets", studioInstance.config.Assets.BasePath),
		utils.Strings("candidates", studioInstance.config.Runtime.Candidates))
	debug.FreeOSMemory()

	// Block Main Thread
	select {}
}
