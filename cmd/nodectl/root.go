// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodectl",
		Short: "Provision and drive a JavaScript runtime",
		Long: TitleStyle.Render("nodectl") + SubtitleStyle.Render(" - provision and drive a JavaScript runtime") + `

nodectl finds or downloads a Node.js runtime, installs packages into its
working directory and runs code on a long-lived interactive session,
reporting whether each submission completed, failed or timed out.

` + SubtitleStyle.Render("Examples:") + `
  nodectl install                  Provision the runtime
  nodectl npm install lodash       Install a package
  nodectl eval "1 + 1"             Run a snippet
  nodectl exec --result script.js  Run a file and print its result
  nodectl config show              Show the effective configuration`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if app.flags.metricsAddr != "" {
				return app.startMetrics(app.flags.metricsAddr)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&app.flags.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/nodectl/config.cue)")
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable debug logging and mirror runtime output")
	pf.StringVar(&app.flags.baseDir, "base-dir", "", "override the runtime base directory")
	pf.StringVar(&app.flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(
		newInstallCommand(app),
		newNpmCommand(app),
		newExecCommand(app),
		newEvalCommand(app),
		newConfigCommand(app),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version != "dev" {
		return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev (built from source)"
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := run(context.Background(), app, NewRootCommand(app)); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitFailure)
	}
}

// run executes rootCmd and shuts the metrics endpoint down afterwards,
// whether or not the command succeeded.
func run(ctx context.Context, app *App, rootCmd *cobra.Command) error {
	defer app.stopMetrics()
	return fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
}
