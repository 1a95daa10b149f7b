package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/cvstudio/kernel/assets"
)

var assetsBase string

// assetsCmd reports which runtime binaries a deployment serves
var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Check which runtime binaries are reachable",
	RunE:  runAssets,
}

func init() {
	assetsCmd.Flags().StringVar(&assetsBase, "base", "", "Asset base URL or directory (default: assets.base_path)")
}

func runAssets(cmd *cobra.Command, args []string) error {
	base := cfg.Assets.BasePath
	if assetsBase != "" {
		base = assetsBase
	}
	base = assets.ResolveBase(base)

	client := assets.NewClient()
	defer client.CloseIdleConnections()

	res := assets.NewChecker(client, logger.Named("assets")).Check(cmd.Context(), base, cfg.Assets.Required)

	out := cmd.OutOrStdout()
	for _, name := range cfg.Assets.Required {
		mark := "missing"
		if res.Has(name) {
			mark = "ok"
		}
		fmt.Fprintf(out, "%-8s %s\n", mark, assets.AssetURL(base, name))
	}

	if len(res.Present) < cfg.Assets.MinimumViable {
		return fmt.Errorf("%d of %d assets present, need %d", len(res.Present), len(cfg.Assets.Required), cfg.Assets.MinimumViable)
	}
	return nil
}
