package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/marketdataplane/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config file operations",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Load and validate a declarative config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	catalog, err := config.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("ok: %d sources, %d series\n", len(catalog.Sources), len(catalog.Series))
	return nil
}
