// Package commands implements the gobinder CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/gobinder/internal/logger"
	"github.com/marmos91/gobinder/pkg/binder"
	"github.com/marmos91/gobinder/pkg/config"
	"github.com/marmos91/gobinder/pkg/metrics"
	promimpl "github.com/marmos91/gobinder/pkg/metrics/prometheus"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gobinder",
	Short: "gobinder - userspace Binder IPC client",
	Long: `gobinder talks to the Linux Binder driver from userspace: it can list
and ping services registered with the ServiceManager and host services of
its own.

Use "gobinder [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrf("Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/gobinder/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("gobinder %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.WriteSample(path, initForce); err != nil {
			return err
		}
		cmd.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

// loadConfig resolves the config file, initializes logging and metrics and
// returns the configuration. Commands that touch the driver call this
// first.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		// The default location is optional; fall back to defaults when absent.
		path = config.DefaultConfigPath()
		if !fileExists(path) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	return cfg, nil
}

// openClient opens the binder driver per the configuration.
func openClient(cfg *config.Config) (*binder.Client, error) {
	return binder.Open(binder.Options{
		Device:         cfg.Binder.Device,
		MaxThreads:     cfg.Binder.MaxThreads,
		ReadBufferSize: cfg.Binder.ReadBufferSize,
		Metrics:        promimpl.NewBinderMetrics(),
	})
}
