package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/cvstudio/kernel/assets"
	"github.com/nmxmxh/cvstudio/kernel/bootstrap"
	kruntime "github.com/nmxmxh/cvstudio/kernel/runtime"
	"github.com/nmxmxh/cvstudio/kernel/utils"
	"github.com/nmxmxh/cvstudio/wasm"
)

var errNotReady = utils.NewError("runtime not ready")

var (
	probeBase         string
	probeIsolationURL string
	probeJSON         bool
	probeTimeout      time.Duration
)

// probeCmd runs the full bootstrap against a deployment
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Select a backend for a deployment and report diagnostics",
	Long: `Run capability detection, the asset check, the backend probe and
configuration against a deployment, then print the resulting status.

The base may be an http(s) URL or a local directory. Exits non-zero when
fewer than the minimum viable number of assets are present.`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeBase, "base", "", "Asset base URL or directory (default: assets.base_path)")
	probeCmd.Flags().StringVar(&probeIsolationURL, "isolation-url", "", "Page URL whose headers prove cross-origin isolation")
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "Print diagnostics as JSON")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", time.Minute, "Give up waiting after this long")
}

func runProbe(cmd *cobra.Command, args []string) error {
	opts := bootstrap.OptionsFromConfig(cfg)
	if probeBase != "" {
		opts.AssetBasePath = probeBase
	}
	opts.AssetBasePath = assets.ResolveBase(opts.AssetBasePath)

	isolationURL := cfg.Runtime.IsolationURL
	if probeIsolationURL != "" {
		isolationURL = probeIsolationURL
	}

	client := assets.NewClient()
	defer client.CloseIdleConnections()

	manager := bootstrap.New(opts,
		kruntime.NewNativeDetector(isolationURL, client),
		wasm.NewWasmerEngine(client, logger.Named("wasmer")),
		bootstrap.WithChecker(assets.NewChecker(client, logger.Named("assets"))),
		bootstrap.WithLogger(logger.Named("bootstrap")),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()
	manager.Initialize(ctx)

	diag := manager.Diagnostics()
	out := cmd.OutOrStdout()
	if probeJSON {
		raw, err := diag.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
	} else {
		printStatus(out, diag)
	}

	if !diag.Ready {
		return errNotReady
	}
	return nil
}

func printStatus(w io.Writer, d bootstrap.Diagnostics) {
	s := d.Status
	fmt.Fprintf(w, "state:      %s\n", d.State)
	fmt.Fprintf(w, "backend:    %s\n", s.Backend)
	fmt.Fprintf(w, "threads:    %d\n", s.ThreadCount)
	fmt.Fprintf(w, "version:    %s\n", s.Version)
	fmt.Fprintf(w, "assets:     %s\n", s.AssetBasePath)
	fmt.Fprintf(w, "present:    %s\n", strings.Join(s.AssetsPresent, ", "))
	fmt.Fprintf(w, "missing:    %s\n", strings.Join(s.AssetsMissing, ", "))
	fmt.Fprintf(w, "simd:       %t\n", s.SIMD)
	fmt.Fprintf(w, "isolated:   %t\n", s.CrossOriginIsolated)
	for _, a := range s.Attempts {
		line := fmt.Sprintf("  %-20s %s", a.Backend, a.Outcome)
		if a.Reason != "" {
			line += " (" + a.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}
	for _, e := range s.ConfigErrors {
		fmt.Fprintf(w, "config error: %s\n", e)
	}
}
