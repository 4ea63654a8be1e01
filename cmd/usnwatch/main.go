package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"usnwatch/internal/app"
	"usnwatch/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a WatchApp. The caller must defer
// app.Close(). Each invocation gets a fresh run ID for log correlation.
func newApp() (*app.WatchApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	a, err := app.NewWatchApp(cfg, runID)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "usnwatch",
	Short: "NTFS change journal activity collector",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Generate a new provider ID
		providerID := uuid.New().String()

		cfg := config.NewConfig(providerID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Provider ID: %s\n", providerID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Provider ID:   %s\n", cfg.ProviderID)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Volumes:       %v\n", cfg.Volumes)
		fmt.Printf("Max Records:   %d\n", cfg.MaxRecordsPerCycle)
		fmt.Printf("Poll Interval: %ds\n", cfg.PollIntervalSeconds)
		fmt.Printf("State File:    %s (enabled=%t)\n", cfg.State.Path, cfg.State.Enabled)
		fmt.Printf("Recorder:      %s\n", cfg.Recorder.Type)
		return nil
	},
}

// journal command
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect volume change journals",
}

var journalInfoCmd = &cobra.Command{
	Use:   "info <volume>",
	Short: "Show journal metadata for a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := app.JournalInfo(args[0])
		if err != nil {
			return fmt.Errorf("querying journal on %s: %w", args[0], err)
		}

		fmt.Printf("Journal for %s:\n\n", args[0])
		fmt.Printf("Journal ID:       %d\n", info.JournalID)
		fmt.Printf("First USN:        %d\n", info.FirstUsn)
		fmt.Printf("Next USN:         %d\n", info.NextUsn)
		fmt.Printf("Lowest Valid USN: %d\n", info.LowestValidUsn)
		fmt.Printf("Max USN:          %d\n", info.MaxUsn)
		fmt.Printf("Maximum Size:     %d\n", info.MaximumSize)
		fmt.Printf("Allocation Delta: %d\n", info.AllocationDelta)
		return nil
	},
}

// collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single collection cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		activities, err := a.CollectOnce()
		if err != nil {
			return fmt.Errorf("collection cycle: %w", err)
		}

		fmt.Printf("Collected %d activities\n", len(activities))
		for v, cursor := range a.Cursors() {
			fmt.Printf("  %s at USN %d\n", v, cursor)
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the change journals until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		// SIGINT/SIGTERM cancel the context; the collector finishes its
		// in-flight cycle (including state persistence) before exiting.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("run loop: %w", err)
		}
		return nil
	},
}

// state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage persisted cursors",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show per-volume cursors",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cursors := a.Cursors()
		if len(cursors) == 0 {
			fmt.Println("No cursors recorded.")
			return nil
		}
		for v, cursor := range cursors {
			fmt.Printf("%s\t%d\n", v, cursor)
		}
		return nil
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all cursors (next cycle tails from the current journal window)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ResetState(); err != nil {
			return fmt.Errorf("resetting state: %w", err)
		}

		fmt.Println("Cursors cleared.")
		return nil
	},
}

// activity command
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Query recorded activities",
}

var activityRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recently recorded activities",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		activities, err := a.RecentActivities(limit)
		if err != nil {
			return err
		}

		if len(activities) == 0 {
			fmt.Println("No activities recorded.")
			return nil
		}
		for _, act := range activities {
			kind := "f"
			if act.IsDirectory {
				kind = "d"
			}
			fmt.Printf("%s\t%s\t%-16s\t%s\tusn=%d\n",
				act.OccurredAt.UTC().Format(time.RFC3339), kind, act.ActivityType, act.Path, act.Usn)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	journalCmd.AddCommand(journalInfoCmd)
	rootCmd.AddCommand(journalCmd)

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)

	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
	rootCmd.AddCommand(stateCmd)

	activityRecentCmd.Flags().Int("limit", 20, "maximum number of activities to show")
	activityCmd.AddCommand(activityRecentCmd)
	rootCmd.AddCommand(activityCmd)
}
