//go:build js && wasm

package main

import (
	"context"
	"syscall/js"
	"time"

	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// notifyHost sends events to the JS environment
func (s *Studio) notifyHost(event string, data map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Host notification failed", utils.Err(utils.RecoveredError(r, "notify")))
		}
	}()

	payload := map[string]interface{}{
		"event":     event,
		"timestamp": time.Now().UnixNano(),
		"data":      data,
	}

	js.Global().Call("dispatchEvent",
		js.Global().Get("CustomEvent").New("studio:runtime", map[string]interface{}{
			"detail": payload,
		}),
	)
}

// statusValue converts the diagnostics view into a plain JS object.
func (s *Studio) statusValue() js.Value {
	st, err := s.manager.Diagnostics().Struct()
	if err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}
	return js.ValueOf(st.AsMap())
}

// --- JS Exports ---

// jsSetup returns a Promise that resolves with the status object. It never
// rejects: failures surface as a degraded status.
func jsSetup(this js.Value, args []js.Value) interface{} {
	executor := js.FuncOf(func(this js.Value, promiseArgs []js.Value) interface{} {
		resolve := promiseArgs[0]
		go func() {
			studioInstance.Setup(context.Background())
			resolve.Invoke(studioInstance.statusValue())
		}()
		return nil
	})
	defer executor.Release()

	return js.Global().Get("Promise").New(executor)
}

func jsStatus(this js.Value, args []js.Value) interface{} {
	return studioInstance.statusValue()
}

func jsIsReady(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(studioInstance.manager.IsReady())
}

func jsLogDiagnostics(this js.Value, args []js.Value) interface{} {
	studioInstance.manager.LogDiagnostics()
	return nil
}

func jsReset(this js.Value, args []js.Value) interface{} {
	studioInstance.manager.Reset()
	return nil
}
