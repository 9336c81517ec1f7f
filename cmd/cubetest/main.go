// cubetest runs the cube title headless: a spinning cube in one 3D set,
// driven by the phase scheduler and event loop, presented to the log.
//
// Usage:
//
//	cubetest run               - Start a session until SIGINT/SIGTERM
//	cubetest workprint [path]  - Show the encoded properties of a group
//
// Global flags:
//
//	--config <path>  - Config file (default: $CUBETEST_CONFIG or config/title.toml)
package main

import (
	"fmt"
	"os"

	"github.com/magiclantern/cubetest/internal/config"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/title.toml"

var flagConfig string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cubetest",
	Short:         "Cube title runtime",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to title config (default: $CUBETEST_CONFIG or "+defaultConfigPath+")")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workprintCmd)
}

// loadConfig resolves the config path: flag, then env, then the default
// path, which may be absent.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.Load(flagConfig)
	}
	if p := os.Getenv("CUBETEST_CONFIG"); p != "" {
		return config.Load(p)
	}
	return config.LoadOrDefault(defaultConfigPath)
}
