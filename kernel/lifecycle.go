//go:build js && wasm

package main

import (
	"context"
	"os"
	"time"

	"github.com/nmxmxh/cvstudio/kernel/bootstrap"
	"github.com/nmxmxh/cvstudio/kernel/config"
	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
	"github.com/nmxmxh/cvstudio/wasm"
)

// Studio owns the page's single bootstrap manager.
type Studio struct {
	config   config.Config
	logger   *utils.Logger
	manager  *bootstrap.Manager
	shutdown *utils.GracefulShutdown

	startTime time.Time
}

// NewStudio wires the browser detector and ONNX Runtime Web engine into a
// manager configured from the page.
func NewStudio() *Studio {
	logger := utils.NewLogger(utils.LoggerConfig{
		Level:     utils.INFO,
		Component: "studio",
		Output:    os.Stdout,
	})
	cfg := loadRuntimeConfig(logger)
	logger = cfg.NewLogger("studio", os.Stdout)
	utils.SetGlobalLogger(logger)

	s := &Studio{
		config:    cfg,
		logger:    logger,
		shutdown:  utils.NewGracefulShutdown(2*time.Second, logger.Named("shutdown")),
		startTime: time.Now(),
	}

	s.manager = bootstrap.New(
		bootstrap.OptionsFromConfig(cfg),
		kruntime.NewBrowserDetector(),
		wasm.NewORTEngine(cfg.Runtime.ProbeModel, logger.Named("ort")),
		bootstrap.WithLogger(logger.Named("bootstrap")),
		bootstrap.WithObserver(s.publish),
	)

	s.shutdown.Register("diagnostics", func(context.Context) error {
		s.manager.LogDiagnostics()
		return nil
	})
	return s
}

// Setup runs (or joins) initialization and returns the snapshot.
func (s *Studio) Setup(ctx context.Context) bootstrap.Status {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Runtime setup panicked", utils.Err(utils.RecoveredError(r, "setup")))
		}
	}()
	return s.manager.Initialize(ctx)
}

// publish forwards each snapshot to page listeners.
func (s *Studio) publish(st bootstrap.Status) {
	payload, err := s.manager.Diagnostics().Struct()
	if err != nil {
		s.logger.Warn("Failed to encode runtime status", utils.Err(err))
		return
	}
	s.notifyHost(st.State.String(), payload.AsMap())
}

// Shutdown flushes final diagnostics when the page unloads.
func (s *Studio) Shutdown() {
	if err := s.shutdown.Shutdown(context.Background()); err != nil {
		s.logger.Warn("Shutdown incomplete", utils.Err(err))
	}
}
