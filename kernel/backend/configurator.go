package backend

import (
	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

// Applied is the configuration the runtime was given.
type Applied struct {
	ThreadCount   int
	AssetBasePath string
	Errors        []string
}

// Configurator pushes the selected backend's settings into the engine
type Configurator struct {
	engine     Engine
	maxThreads int
	logger     *utils.Logger
}

// NewConfigurator creates a configurator. maxThreads <= 0 means no cap
// beyond the host's core count.
func NewConfigurator(engine Engine, maxThreads int, logger *utils.Logger) *Configurator {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Configurator{engine: engine, maxThreads: maxThreads, logger: logger}
}

// Apply sets the asset path and thread count. Failures are logged and
// recorded; they never stop initialization.
func (c *Configurator) Apply(id ID, caps kruntime.Capabilities, basePath string) Applied {
	applied := Applied{
		ThreadCount:   ThreadCount(id, caps, c.maxThreads),
		AssetBasePath: basePath,
	}

	if c.engine == nil {
		applied.Errors = append(applied.Errors, ErrNoEngine.Error())
		c.logger.Error("Runtime configuration skipped", utils.Err(ErrNoEngine))
		return applied
	}

	if err := guard("set asset path", func() error { return c.engine.SetAssetPath(basePath) }); err != nil {
		applied.Errors = append(applied.Errors, err.Error())
		c.logger.Error("Failed to set runtime asset path", utils.String("path", basePath), utils.Err(err))
	}
	if err := guard("set thread count", func() error { return c.engine.SetThreadCount(applied.ThreadCount) }); err != nil {
		applied.Errors = append(applied.Errors, err.Error())
		c.logger.Error("Failed to set runtime thread count", utils.Int("threads", applied.ThreadCount), utils.Err(err))
	}

	c.logger.Info("Runtime configured",
		utils.String("backend", id.String()),
		utils.Int("threads", applied.ThreadCount),
		utils.String("assets", basePath))
	return applied
}

// ThreadCount is 1 unless the page is cross-origin isolated and the backend
// is threaded; then half the cores, at least 2, capped by maxThreads.
func ThreadCount(id ID, caps kruntime.Capabilities, maxThreads int) int {
	if !caps.CrossOriginIsolated || !id.RequiresThreads() {
		return 1
	}
	n := caps.HardwareConcurrency / 2
	if n < 2 {
		n = 2
	}
	if maxThreads > 0 && n > maxThreads {
		n = maxThreads
	}
	return n
}

func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = utils.RecoveredError(r, op)
		}
	}()
	if err = fn(); err != nil {
		return utils.WrapError(err, op)
	}
	return nil
}
