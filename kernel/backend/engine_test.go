package backend

import (
	"context"
	"errors"
	"sync"
)

// fakeEngine records every call and fails the backends listed in fail.
type fakeEngine struct {
	mu        sync.Mutex
	fail      map[ID]error
	panicOn   map[ID]bool
	attempts  []ID
	requests  []SessionRequest
	assetPath string
	threads   int
	pathErr   error
	threadErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{fail: map[ID]error{}, panicOn: map[ID]bool{}}
}

func (f *fakeEngine) SetAssetPath(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pathErr != nil {
		return f.pathErr
	}
	f.assetPath = path
	return nil
}

func (f *fakeEngine) SetThreadCount(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.threadErr != nil {
		return f.threadErr
	}
	f.threads = n
	return nil
}

func (f *fakeEngine) CreateSession(ctx context.Context, req SessionRequest) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, req.Backend)
	f.requests = append(f.requests, req)
	err, panics := f.fail[req.Backend], f.panicOn[req.Backend]
	f.mu.Unlock()

	if panics {
		panic("wasm instantiate aborted")
	}
	return err
}

func (f *fakeEngine) Version() string { return "fake-1.0" }

func (f *fakeEngine) tried() []ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ID(nil), f.attempts...)
}

func (f *fakeEngine) sessions() []SessionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SessionRequest(nil), f.requests...)
}

var errInstantiate = errors.New("no available backend found")
