package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/morgaesis/GitHub-Migrator/internal/config"
	"github.com/morgaesis/GitHub-Migrator/internal/ui"
)

var checkTokens bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved configuration",
	Long: `Prints every setting as resolved from flags, environment, config file and
.env file. Tokens are masked. With --check both tokens are verified against
the API and the account they belong to is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		theme := ui.NewTheme(out, ui.ShouldUseColor(out))
		printConfig(out, theme, cfg)
		if !checkTokens {
			return nil
		}

		src, dst := clients(cfg)
		fmt.Fprintln(out)
		fmt.Fprintln(out, theme.RenderCategory("tokens"))
		failed := false
		for _, side := range []struct {
			name  string
			token string
			check func() (string, error)
		}{
			{"source", cfg.SourceToken, func() (string, error) { return src.Preflight(cmd.Context()) }},
			{"target", cfg.TargetToken, func() (string, error) { return dst.Preflight(cmd.Context()) }},
		} {
			if side.token == "" {
				fmt.Fprintf(out, "%s %-8s %s\n", theme.RenderSkipIcon(), side.name, theme.Muted.Render("not set"))
				continue
			}
			login, err := side.check()
			if err != nil {
				failed = true
				fmt.Fprintf(out, "%s %-8s %s\n", theme.RenderFailIcon(), side.name, theme.Fail.Render(err.Error()))
				continue
			}
			fmt.Fprintf(out, "%s %-8s @%s\n", theme.RenderPassIcon(), side.name, login)
		}
		if failed {
			return fmt.Errorf("token check failed")
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&checkTokens, "check", false, "Verify both tokens against the API")
	rootCmd.AddCommand(statusCmd)
}

func printConfig(w io.Writer, theme *ui.Theme, cfg *config.Config) {
	file := cfg.File
	if file == "" {
		file = "(none)"
	}
	fmt.Fprintf(w, "%s %s\n", theme.RenderCategory("configuration"), theme.Muted.Render("file: "+file))
	for _, k := range config.Keys {
		val := cfg.Get(k.Name)
		switch {
		case k.Secret:
			val = config.Mask(val)
		case val == "":
			val = theme.Muted.Render("(not set)")
		}
		fmt.Fprintf(w, "  %-20s %s  %s\n", k.Name, val, theme.Muted.Render(k.EnvVar))
	}
}
