package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

var (
	serveAddr       string
	serveRoot       string
	serveNoIsolate  bool
	serveNoCompress bool
)

// serveCmd hosts runtime binaries for local development
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runtime assets with cross-origin isolation headers",
	Long: `Serve a directory over HTTP with the headers browsers require to
enable SharedArrayBuffer (COOP/COEP/CORP), the application/wasm content
type and brotli encoding for wasm and JavaScript files.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: host.addr)")
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "Directory to serve (default: host.root)")
	serveCmd.Flags().BoolVar(&serveNoIsolate, "no-isolate", false, "Omit cross-origin isolation headers")
	serveCmd.Flags().BoolVar(&serveNoCompress, "no-compress", false, "Disable brotli encoding")
}

func hostOptions() (string, string, assets.HostOptions) {
	addr, root := cfg.Host.Addr, cfg.Host.Root
	if serveAddr != "" {
		addr = serveAddr
	}
	if serveRoot != "" {
		root = serveRoot
	}
	return addr, root, assets.HostOptions{
		Isolate:  cfg.Host.Isolate && !serveNoIsolate,
		Compress: cfg.Host.Compress && !serveNoCompress,
		Logger:   logger.Named("host"),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, root, opts := hostOptions()
	if _, err := os.Stat(root); err != nil {
		return utils.WrapError(err, "asset root")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           assets.NewHost(root, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := utils.NewGracefulShutdown(10*time.Second, logger.Named("shutdown"))
	shutdown.Register("http", srv.Shutdown)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving runtime assets",
			utils.String("addr", addr),
			utils.String("root", root),
			utils.Bool("isolate", opts.Isolate),
			utils.Bool("compress", opts.Compress))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return utils.WrapError(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}
	return shutdown.Shutdown(context.Background())
}
