package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/morgaesis/GitHub-Migrator/internal/config"
	"github.com/morgaesis/GitHub-Migrator/internal/github"
	"github.com/morgaesis/GitHub-Migrator/internal/telemetry"
	"github.com/morgaesis/GitHub-Migrator/internal/ui"
)

var (
	verboseFlag bool // Enable debug output
	quietFlag   bool // Only warnings and errors
	dryRun      bool // Fetch and decide, write nothing
	configFile  string
	reportFile  string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ghmigrate",
	Short: "ghmigrate - Move a GitHub repository to another account",
	Long: `Copies a repository's git history, labels, milestones, issues, pull requests
(as issues), comments and Project V2 board from one account or organization
to another. Every copied item carries a provenance marker, so re-running a
migration updates what was copied instead of duplicating it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = slog.New(ui.NewHandler(os.Stderr, ui.LevelFor(verboseFlag, quietFlag), ui.ShouldUseColor(os.Stderr)))
		slog.SetDefault(logger)
		if err := telemetry.Init(cmd.Context(), Version, telemetry.SettingsFromEnv()); err != nil {
			logger.Warn("telemetry disabled", "error", err)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug output")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "Only print warnings and errors")
	pf.BoolVar(&dryRun, "dry-run", false, "Fetch and plan, but change nothing on the target")
	pf.StringVar(&configFile, "config", "", "Config file (default "+config.DefaultConfigPath()+")")
	pf.StringVar(&reportFile, "report", "", "Write the run report as YAML to this file")
	config.AddFlags(pf)
}

// loadConfig resolves configuration for cmd and validates it for actions.
func loadConfig(cmd *cobra.Command, actions ...config.Action) (*config.Config, error) {
	loader := config.NewLoader()
	loader.ConfigFile = configFile
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(actions...); err != nil {
		return nil, err
	}
	if cfg.File != "" {
		logger.Debug("loaded config file", "path", cfg.File)
	}
	return cfg, nil
}

// clients returns API clients for the source and target tokens.
func clients(cfg *config.Config) (src, dst *github.Client) {
	src = github.NewClient(cfg.SourceToken).WithBaseURL(cfg.APIURL).WithLogger(logger.With("side", "source"))
	dst = github.NewClient(cfg.TargetToken).WithBaseURL(cfg.APIURL).WithLogger(logger.With("side", "target"))
	return src, dst
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := telemetry.Shutdown(flushCtx); err != nil && logger != nil {
		logger.Warn("telemetry flush failed", "error", err)
	}
	flushCancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
