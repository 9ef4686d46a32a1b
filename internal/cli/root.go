// Package cli provides the command-line interface for sitesnap.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/raphaelgruber/sitesnap/internal/client"
	"github.com/raphaelgruber/sitesnap/internal/config"
	"github.com/raphaelgruber/sitesnap/internal/metrics"
	"github.com/raphaelgruber/sitesnap/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	cfgFile string

	// Loaded in PersistentPreRunE
	cfg           *config.Config
	logger        *slog.Logger
	closeLog      func() error
	collector     *metrics.Collector
	promptAPIKey  = promptForAPIKey
	newSiteClient = newAPI
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sitesnap",
	Short: "Trigger and track project snapshots across a site",
	Long: `Sitesnap triggers snapshots on many projects of a data management site,
polls them until they finish or a time budget runs out, and writes a CSV report.

A report can be fed back with --retry to re-snapshot only the projects that did
not complete.

The API key has the form <host>[:<port>]:<secret>. It is read from --api-key,
SITESNAP_API_KEY or the config file (~/.sitesnap/config.yaml), and prompted for
on an interactive terminal when missing.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		fileLevel, stderrLevel := cfg.Level(), slog.LevelWarn
		if verbose {
			fileLevel, stderrLevel = slog.LevelDebug, slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, fileLevel, stderrLevel)
		collector = metrics.NewCollector()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs on stderr)")
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.sitesnap/config.yaml)")
	pf.String("api-key", "", "site API key (prefer SITESNAP_API_KEY)")
	pf.String("base-url", "", "API base URL (default derived from the API key)")
	pf.String("log-file", config.Default.LogFile, "JSON log file")
	pf.String("log-level", config.Default.LogLevel, "log file level: DEBUG, INFO, WARN, ERROR")
}

// newClient builds the REST client from the loaded config, prompting for a
// missing API key when possible.
func newClient() (*client.Client, error) {
	key := cfg.APIKey
	if key == "" {
		var err error
		key, err = promptAPIKey()
		if err != nil {
			return nil, err
		}
	}

	opts := []client.Option{
		client.WithTimeout(cfg.ClientTimeout),
		client.WithPageSize(cfg.PageSize),
		client.WithCollector(collector),
		client.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, client.WithBaseURL(cfg.BaseURL))
	}

	c, err := client.New(key, opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	logger.Debug("client ready", "base_url", c.BaseURL())
	return c, nil
}

func newAPI() (snapshot.API, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// logAPIStats writes per-operation API timings and the session totals at debug level.
func logAPIStats(log *slog.Logger) {
	stats := collector.Snapshot()
	var calls int64
	for _, s := range stats {
		calls += s.Count
		log.Debug("api stats",
			"op", s.Op,
			"count", s.Count,
			"errors", s.Errors,
			"avg_ms", s.AvgTimeMs,
			"min_ms", s.MinTimeMs,
			"max_ms", s.MaxTimeMs,
		)
	}
	log.Debug("api session", "calls", calls, "uptime", collector.Uptime().Round(time.Millisecond).String())
}
