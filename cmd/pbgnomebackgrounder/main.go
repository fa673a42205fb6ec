// Package main is the entry point for the pbgnomebackgrounder CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/config"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/core"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/desktop"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/registry"
	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/ui"

	// Fallback platform registration.
	_ "github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform/stub"
)

const version = "1.0.0"

var (
	// Global flags
	cfgFile string
	verbose bool
	quiet   bool

	// Global output
	out *ui.Output
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pbgnomebackgrounder",
		Short: "Per-desktop wallpapers for GNOME",
		Long: `pbgnomebackgrounder is a daemon that gives each virtual desktop its own
wallpaper. It watches the active desktop, reapplies the background that
desktop had last time, and records wallpaper changes made through the
standard desktop tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/pbgnomebackgrounder/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	// Every handled signal maps to the same graceful-shutdown transition.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGTSTP,
		syscall.SIGABRT,
	)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		out = ui.DefaultOutput()
		out.Error("%v", err)
		os.Exit(1)
	}
}

// initOutput initializes logging and the CLI output.
func initOutput() {
	out = ui.DefaultOutput()
	out.SetQuiet(quiet)

	log.SetOutput(os.Stderr)
	switch {
	case verbose:
		log.SetLevel(log.DebugLevel)
	case quiet:
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// loadPlatform loads the configuration and connects the session platform.
func loadPlatform() (*config.Config, platform.Platform, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	platform.SetSchema(cfg.Settings.Schema)
	plat, err := platform.Current()
	if err != nil {
		return cfg, nil, err
	}
	if !plat.IsSupported() {
		return cfg, nil, fmt.Errorf("platform %s is not supported, an X11 session is required", plat.Name())
	}
	return cfg, plat, nil
}

// newRunCmd creates the run command, the daemon itself.
func newRunCmd() *cobra.Command {
	var interval int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the per-desktop background daemon",
		Long: `Runs the polling daemon. At most one instance manages a session: a
newly started daemon asks a running one to step down and takes over.
Stops cleanly when the session ends or on SIGINT/SIGTERM/SIGQUIT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			initOutput()

			cfg, plat, err := loadPlatform()
			if err != nil {
				if errors.Is(err, platform.ErrConnectionLost) {
					// No session to manage is a clean no-op, not a failure.
					log.WithError(err).Info("No display server, nothing to manage")
					return nil
				}
				return err
			}
			defer plat.Close()

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			if interval > 0 {
				cfg.Daemon.Interval = interval
			}

			engine, err := core.New(cfg, plat)
			if err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}

			return engine.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&interval, "interval", 0, "polling interval in seconds (overrides config)")

	return cmd
}

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and registry status",
		RunE: func(cmd *cobra.Command, args []string) error {
			initOutput()

			cfg, plat, err := loadPlatform()
			if err != nil {
				return err
			}
			defer plat.Close()

			values, err := plat.Properties().Get(cfg.Daemon.MarkerProperty)
			if err != nil {
				return err
			}

			out.Print("")
			if len(values) == 0 {
				out.Info("Daemon is not running")
			} else if pid, err := strconv.Atoi(values[0]); err == nil {
				if plat.Processes().Alive(pid) {
					out.Success("Daemon is running")
					out.Field("PID", values[0])
					if owner := plat.Processes().Owner(pid); owner != "" {
						out.Field("User", owner)
					}
				} else {
					out.Warning("Stale daemon marker (pid %d is gone)", pid)
				}
			} else {
				out.Warning("Garbled daemon marker: %q", values[0])
			}

			tracker := desktop.NewTracker(plat.Properties(), plat.Geometry())
			if active, err := tracker.Current(); err == nil {
				out.Field("Active desktop", active)
			}

			keys, err := plat.Settings().ListKeys()
			if err != nil {
				return err
			}
			reg := registry.New(cfg.Registry.Path, keys, plat.Settings())
			reg.Load()

			out.Field("Registry", cfg.Registry.Path)
			desktops := reg.Desktops()
			out.Field("Remembered desktops", strconv.Itoa(len(desktops)))
			for _, d := range desktops {
				out.Print("    %s", d)
			}
			out.Print("")

			return nil
		},
	}
}

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize pbgnomebackgrounder configuration",
		Long:  "Creates the default configuration file and directories.",
		RunE: func(cmd *cobra.Command, args []string) error {
			initOutput()

			configPath := cfgFile
			if configPath == "" {
				configPath = filepath.Join(config.DefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				out.Warning("Configuration already exists at %s", configPath)
				out.Info("Use --force to overwrite")
				return nil
			}

			cfg := config.DefaultConfig()

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			if err := cfg.Save(configPath); err != nil {
				return err
			}

			out.Success("pbgnomebackgrounder initialized")
			out.Field("Config", configPath)
			out.Field("Registry", cfg.Registry.Path)
			out.Field("Interval", (time.Duration(cfg.Daemon.Interval) * time.Second).String())

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration")

	return cmd
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			initOutput()
			out.Print("pbgnomebackgrounder version %s", version)
		},
	}
}
