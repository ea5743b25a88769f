package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plexmirror/internal/app"
	"plexmirror/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var envFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds the effective config: built-in defaults, then the config
// file if present, then environment variables (including --env-file values).
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults["config_path"], config.NewConfig(defaults["base_dir"]))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var fileValues map[string]string
	if envFile != "" {
		if fileValues, err = config.LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}
	config.ApplyEnv(cfg, config.EnvLookup(fileValues))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp loads the config and creates an App. The caller must defer a.Close().
// command identifies the CLI command being run (e.g. "watch", "sync").
func newApp(command string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, command)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "plexmirror",
	Short:        "Mirror a Plex server's databases and metadata to backup trees",
	SilenceUsage: true,
	RunE:         runWatch,
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch both trees and mirror every change until interrupted",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp("watch")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile both backup trees with their sources once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("sync")
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		results, err := a.Sync()
		for _, r := range results {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			}
			fmt.Printf("%-9s  dirs %s  copied %s  linked %s  unchanged %s  removed %s  failed %s  %s\n",
				r.Label,
				humanize.Comma(int64(r.Stats.Directories)),
				humanize.Comma(int64(r.Stats.Copied)),
				humanize.Comma(int64(r.Stats.Linked)),
				humanize.Comma(int64(r.Stats.Unchanged)),
				humanize.Comma(int64(r.Stats.Removed)),
				humanize.Comma(int64(r.Stats.Failed)),
				status,
			)
		}
		fmt.Printf("Finished in %s\n", time.Since(start).Truncate(time.Millisecond))
		return err
	},
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

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Base Dir:        %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:         %s\n", cfg.LogDir)
		fmt.Printf("Log Level:       %s\n", cfg.LogLevel)
		fmt.Printf("Initial Sync:    %t\n", cfg.InitialSync)
		fmt.Printf("Database:        %s -> %s\n", cfg.Database.Source, cfg.Database.Backup)
		fmt.Printf("Metadata:        %s -> %s\n", cfg.Metadata.Source, cfg.Metadata.Backup)
		fmt.Printf("Journal:         %s %s\n", cfg.Journal.Type, cfg.Journal.DataDir)
		fmt.Printf("Ignore:          %v\n", cfg.Filesystem.Ignore)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent mirror runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Second).String()
			}
			fmt.Printf("%s  %-6s  %s (%s)  %-9s  %s\n",
				r.ID,
				r.Command,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				humanize.Time(r.StartedAt),
				r.Status,
				duration,
			)
		}
		return nil
	},
}

var historyEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "View recently mirrored events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.Events(limit)
		if err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		for _, e := range events {
			path := e.SrcPath
			if e.DestPath != "" {
				path = e.SrcPath + " -> " + e.DestPath
			}
			fmt.Printf("%s  %-8s  %-8s  %-11s  %s\n",
				humanize.Time(e.HandledAt),
				e.Target,
				e.Kind,
				e.Action,
				path,
			)
			if e.Error != "" {
				fmt.Printf("    error: %s\n", e.Error)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Read environment variables from a dotenv file")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// history subcommands
	historyCmd.AddCommand(historyEventsCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	historyEventsCmd.Flags().IntP("limit", "n", 50, "Maximum number of events to show")

	// root commands
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
}
