//go:build js && wasm

package wasm

import (
	"context"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/nmxmxh/cvstudio/kernel/backend"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// ORTEngine drives the ONNX Runtime Web bundle exposed as globalThis.ort.
type ORTEngine struct {
	probeURL string
	logger   *utils.Logger

	mu      sync.Mutex
	threads int
}

// NewORTEngine creates an engine. Sessions are created from probeURL when
// set, otherwise from the built-in probe model.
func NewORTEngine(probeURL string, logger *utils.Logger) *ORTEngine {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &ORTEngine{probeURL: probeURL, logger: logger, threads: 1}
}

func (e *ORTEngine) ort() (js.Value, error) {
	ort := js.Global().Get("ort")
	if ort.IsUndefined() || ort.IsNull() {
		return js.Value{}, ErrRuntimeUnavailable
	}
	return ort, nil
}

func (e *ORTEngine) wasmEnv() (js.Value, error) {
	ort, err := e.ort()
	if err != nil {
		return js.Value{}, err
	}
	env := ort.Get("env")
	if env.IsUndefined() || env.Get("wasm").IsUndefined() {
		return js.Value{}, utils.WrapError(ErrRuntimeUnavailable, "ort.env.wasm")
	}
	return env.Get("wasm"), nil
}

func (e *ORTEngine) SetAssetPath(path string) (err error) {
	if path == "" {
		return ErrEmptyAssetPath
	}
	defer recoverJS(&err, "set wasmPaths")

	env, err := e.wasmEnv()
	if err != nil {
		return err
	}
	env.Set("wasmPaths", path)
	return nil
}

func (e *ORTEngine) SetThreadCount(n int) (err error) {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidThreadCount, n)
	}
	defer recoverJS(&err, "set numThreads")

	env, err := e.wasmEnv()
	if err != nil {
		return err
	}
	env.Set("numThreads", n)

	e.mu.Lock()
	e.threads = n
	e.mu.Unlock()
	return nil
}

// CreateSession flips the runtime flags for req.Backend and awaits
// InferenceSession.create. The session is released once it loads.
func (e *ORTEngine) CreateSession(ctx context.Context, req backend.SessionRequest) (err error) {
	defer recoverJS(&err, "create session")

	ort, err := e.ort()
	if err != nil {
		return err
	}
	env, err := e.wasmEnv()
	if err != nil {
		return err
	}

	// The runtime reads these once, when the first session loads the binary.
	threads := req.Threads
	if threads < 1 || !req.Backend.RequiresThreads() {
		threads = 1
	}
	env.Set("simd", req.Backend.RequiresSIMD())
	env.Set("numThreads", threads)
	if req.AssetBasePath != "" {
		env.Set("wasmPaths", req.AssetBasePath)
	}

	var source js.Value
	if e.probeURL != "" {
		source = js.ValueOf(e.probeURL)
	} else {
		model := ProbeModel()
		source = js.Global().Get("Uint8Array").New(len(model))
		js.CopyBytesToJS(source, model)
	}
	options := js.ValueOf(map[string]interface{}{
		"executionProviders": []interface{}{"wasm"},
	})

	session, err := await(ctx, ort.Get("InferenceSession").Call("create", source, options))
	if err != nil {
		return utils.WrapError(err, "InferenceSession.create")
	}
	if release := session.Get("release"); release.Type() == js.TypeFunction {
		session.Call("release")
	}
	e.logger.Debug("Inference session created", utils.String("backend", req.Backend.String()))
	return nil
}

// Version reports ort.env.versions.web, falling back to ort.env.version.
func (e *ORTEngine) Version() (v string) {
	defer func() {
		if recover() != nil {
			v = ""
		}
	}()
	ort, err := e.ort()
	if err != nil {
		return ""
	}
	env := ort.Get("env")
	if versions := env.Get("versions"); !versions.IsUndefined() {
		if web := versions.Get("web"); web.Type() == js.TypeString {
			return web.String()
		}
	}
	if version := env.Get("version"); version.Type() == js.TypeString {
		return version.String()
	}
	return ""
}

// await blocks until the promise settles or ctx ends. Must not be called
// from a js.FuncOf callback.
func await(ctx context.Context, promise js.Value) (js.Value, error) {
	type settled struct {
		value js.Value
		err   error
	}
	done := make(chan settled, 1)

	onResolve := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		var v js.Value
		if len(args) > 0 {
			v = args[0]
		}
		done <- settled{value: v}
		return nil
	})
	onReject := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		msg := "promise rejected"
		if len(args) > 0 {
			msg = jsErrorText(args[0])
		}
		done <- settled{err: utils.NewError(msg)}
		return nil
	})

	promise.Call("then", onResolve, onReject)

	select {
	case res := <-done:
		onResolve.Release()
		onReject.Release()
		return res.value, res.err
	case <-ctx.Done():
		// The callbacks stay alive: the promise may still settle.
		return js.Value{}, ctx.Err()
	}
}

func jsErrorText(v js.Value) string {
	if v.Type() == js.TypeObject {
		if msg := v.Get("message"); msg.Type() == js.TypeString {
			return msg.String()
		}
	}
	return v.String()
}

// recoverJS turns a js.Error panic into an error.
func recoverJS(err *error, op string) {
	if r := recover(); r != nil {
		if jsErr, ok := r.(js.Error); ok {
			*err = utils.WrapError(utils.NewError(jsErrorText(jsErr.Value)), op)
			return
		}
		*err = utils.RecoveredError(r, op)
	}
}
