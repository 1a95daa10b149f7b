//go:build !js || !wasm

package wasm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	"github.com/nmxmxh/cvstudio/kernel/backend"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

const wasmerModulePath = "github.com/wasmerio/wasmer-go"

// maxBinarySize bounds a downloaded backend binary.
var maxBinarySize = 64 << 20

// WasmerEngine compiles backend binaries with wasmer. A session succeeds
// when the binary for the requested backend downloads and compiles on this
// host.
type WasmerEngine struct {
	client *http.Client
	logger *utils.Logger

	mu        sync.Mutex
	store     *wasmer.Store
	assetPath string
	threads   int
	modules   map[backend.ID]*wasmer.Module
}

func NewWasmerEngine(client *http.Client, logger *utils.Logger) *WasmerEngine {
	if client == nil {
		client = assets.NewClient()
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &WasmerEngine{
		client:  client,
		logger:  logger,
		store:   wasmer.NewStore(wasmer.NewEngine()),
		threads: 1,
		modules: make(map[backend.ID]*wasmer.Module),
	}
}

func (e *WasmerEngine) SetAssetPath(path string) error {
	if path == "" {
		return ErrEmptyAssetPath
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assetPath = assets.ResolveBase(path)
	return nil
}

func (e *WasmerEngine) SetThreadCount(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidThreadCount, n)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threads = n
	return nil
}

// CreateSession downloads the backend binary and compiles it.
func (e *WasmerEngine) CreateSession(ctx context.Context, req backend.SessionRequest) error {
	base := req.AssetBasePath
	if base == "" {
		e.mu.Lock()
		base = e.assetPath
		e.mu.Unlock()
	}
	if base == "" {
		return ErrEmptyAssetPath
	}

	target := assets.AssetURL(assets.ResolveBase(base), req.Backend.Asset())
	binary, err := e.fetch(ctx, target)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	module, err := wasmer.NewModule(e.store, binary)
	if err != nil {
		return utils.WrapError(err, "compile "+req.Backend.Asset())
	}
	e.modules[req.Backend] = module
	e.logger.Debug("Backend binary compiled",
		utils.String("backend", req.Backend.String()),
		utils.Int("bytes", len(binary)),
		utils.Int("exports", len(module.Exports())))
	return nil
}

func (e *WasmerEngine) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, utils.WrapError(err, "build request")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, utils.WrapError(err, "fetch "+target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", backend.ErrAssetMissing, target, resp.StatusCode)
	}
	binary, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBinarySize)+1))
	if err != nil {
		return nil, utils.WrapError(err, "read "+target)
	}
	if len(binary) > maxBinarySize {
		return nil, fmt.Errorf("%w: %s", ErrBinaryTooLarge, target)
	}
	return binary, nil
}

// Compiled reports whether a session was created for id.
func (e *WasmerEngine) Compiled(id backend.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.modules[id]
	return ok
}

// Threads returns the configured thread count.
func (e *WasmerEngine) Threads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threads
}

// Version reports the wasmer-go module version linked into the binary.
func (e *WasmerEngine) Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "wasmer"
	}
	for _, dep := range info.Deps {
		if dep.Path == wasmerModulePath {
			return "wasmer-go " + dep.Version
		}
	}
	return "wasmer"
}
