package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sawpanic/marketdataplane/internal/domain"
	"github.com/sawpanic/marketdataplane/internal/scheduler"
)

var cycleCategory string

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Scheduler cycle operations",
}

var cycleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single scheduler cycle and print its report",
	RunE:  runCycleRun,
}

func init() {
	cycleCmd.AddCommand(cycleRunCmd)
	rootCmd.AddCommand(cycleCmd)
	cycleRunCmd.Flags().StringVar(&cycleCategory, "category", "", "Restrict the cycle to one series category")
}

func runCycleRun(cmd *cobra.Command, args []string) error {
	sys, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer sys.close()

	sched := scheduler.New(sys.sysctx, sys.catalog, sys.adapterSet, sys.store)

	var filter *domain.Category
	if cycleCategory != "" {
		cat := domain.Category(cycleCategory)
		filter = &cat
	}

	report, err := sched.RunCycle(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("cycle run: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
