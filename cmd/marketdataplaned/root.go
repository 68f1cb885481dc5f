// Package main is the marketdataplaned daemon entrypoint: a cobra CLI with
// serve/cycle/config subcommands, grounded on the teacher's
// cmd/cryptorun/main.go + per-command file layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "marketdataplaned",
	Short: "Market intelligence data plane",
	Long: `marketdataplaned polls market, economic, and news sources on a
schedule, validates and stores accepted observations, and serves them
through a read API with derived analytics (correlations, narrative regime,
recession probability).`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/marketdataplane.yaml", "Path to the declarative config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
