// Command studio verifies inference runtime deployments and serves the
// runtime assets for local development.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmxmxh/cvstudio/kernel/config"
	"github.com/nmxmxh/cvstudio/kernel/utils"
)

var (
	configPath string
	verbose    bool

	cfg    config.Config
	logger *utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Inference runtime bootstrap tooling",
	Long: `studio runs the inference runtime bootstrap outside the browser.

It detects host capabilities, checks which runtime binaries a deployment
serves, probes backends with wasmer and reports the result. The serve
command hosts the binaries with cross-origin isolation headers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		cfg = loaded
		logger = cfg.NewLogger("studio", cmd.ErrOrStderr())
		utils.SetGlobalLogger(logger)
		return nil
	},
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
