package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/morgaesis/GitHub-Migrator/internal/config"
	"github.com/morgaesis/GitHub-Migrator/internal/git"
	"github.com/morgaesis/GitHub-Migrator/internal/migrator"
	"github.com/morgaesis/GitHub-Migrator/internal/reconcile"
	"github.com/morgaesis/GitHub-Migrator/internal/types"
	"github.com/morgaesis/GitHub-Migrator/internal/ui"
)

var (
	noMirror  bool
	noProject bool
	freshMode bool
	assumeYes bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Mirror the git repository, then copy metadata and the project",
	Long: `Runs a full migration: mirrors every branch and tag to the target repository
(creating it if needed), copies labels, milestones, issues and comments, and
syncs the project board when project names are configured.

Re-running is safe. In the default reconcile mode already-migrated items are
updated to match the source; with --fresh they are left alone and only missing
items are created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		actions := []config.Action{config.ActionRepo}
		if !noMirror {
			actions = append(actions, config.ActionMirror)
		}
		cfg, err := loadConfig(cmd, actions...)
		if err != nil {
			return err
		}
		withProject := !noProject && cfg.SourceProject != ""
		if withProject {
			if err := cfg.Validate(config.ActionProject); err != nil {
				return err
			}
		}
		return execute(cmd, cfg, migrator.Options{
			Mirror:    !noMirror,
			Reconcile: true,
			Mode:      mode(),
		}, withProject)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Copy labels, milestones, issues and comments without touching git",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, config.ActionRepo)
		if err != nil {
			return err
		}
		return execute(cmd, cfg, migrator.Options{Reconcile: true, Mode: mode()}, false)
	},
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Push every git ref of the source repository to the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, config.ActionMirror)
		if err != nil {
			return err
		}
		return execute(cmd, cfg, migrator.Options{Mirror: true}, false)
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Copy the project board, linking items to already-migrated issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, config.ActionProject)
		if err != nil {
			return err
		}
		return execute(cmd, cfg, migrator.Options{}, true)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&noMirror, "no-mirror", false, "Skip the git mirror push")
	migrateCmd.Flags().BoolVar(&noProject, "no-project", false, "Skip project sync")
	for _, c := range []*cobra.Command{migrateCmd, reconcileCmd} {
		c.Flags().BoolVar(&freshMode, "fresh", false, "Only create missing items; leave migrated ones unchanged")
	}
	for _, c := range []*cobra.Command{migrateCmd, mirrorCmd} {
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask before pushing branches and tags")
	}
	rootCmd.AddCommand(migrateCmd, reconcileCmd, mirrorCmd, projectCmd)
}

func mode() reconcile.Mode {
	if freshMode {
		return reconcile.ModeFresh
	}
	return reconcile.ModeReconcile
}

// execute fills opts from cfg, runs the migration and reports on it.
func execute(cmd *cobra.Command, cfg *config.Config, opts migrator.Options, withProject bool) error {
	opts.Source, opts.Target = cfg.Source, cfg.Target
	opts.DryRun = dryRun
	opts.GitHost = cfg.GitHost
	opts.SourceToken, opts.TargetToken = cfg.SourceToken, cfg.TargetToken
	if withProject {
		opts.SourceProject, opts.TargetProject = cfg.SourceProject, cfg.TargetProject
	}
	if opts.Mirror && !assumeYes && term.IsTerminal(int(os.Stdin.Fd())) {
		opts.Confirm = confirmMirrorPush
	}

	src, dst := clients(cfg)
	var mirror migrator.Transferer
	if opts.Mirror {
		mirror = git.NewMirror(cfg.MirrorDir, logger)
	}
	r := migrator.New(src, dst, mirror, logger)

	rep, runErr := r.Run(cmd.Context(), opts)
	out := cmd.OutOrStdout()
	if err := ui.RenderSummary(out, ui.NewTheme(out, ui.ShouldUseColor(out)), rep); err != nil {
		logger.Warn("could not print summary", "error", err)
	}
	if reportFile != "" {
		if err := rep.SaveYAML(reportFile); err != nil {
			return err
		}
		logger.Info("wrote report", "path", reportFile)
	}
	if runErr != nil {
		return runErr
	}
	if rep.Failed() {
		return errors.New("migration incomplete")
	}
	return nil
}

// confirmMirrorPush asks before overwriting the target's branches and tags.
func confirmMirrorPush(ctx context.Context, target types.RepoRef) (bool, error) {
	ok := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Push branches and tags to %s?", target)).
				Description("Every branch and tag on the target is overwritten, and refs the source lacks are deleted.").
				Affirmative("Push").
				Negative("Cancel").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula())
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
