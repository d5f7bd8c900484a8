// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/invowk/nodectl/internal/provision"
)

func newInstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Find or download the runtime",
		Long: `Resolve the runtime for this platform.

A launchable node, npm and npx on PATH are used as-is unless prefer_system
is false. Otherwise the newest matching archive listed at index_url is
downloaded once into <base-dir>/installation and reused afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.settings(cmd.Context())
			if err != nil {
				return app.fail(err, "load configuration")
			}
			inst, err := app.provisioner(cfg).EnsureInstalled(cmd.Context())
			if err != nil {
				return app.fail(err, "provision runtime")
			}
			printInstallation(app.stdout, inst)
			return nil
		},
	}
}

func printInstallation(w io.Writer, inst *provision.Installation) {
	version := inst.Version
	if version == "" {
		version = SubtitleStyle.Render("(unknown)")
	}
	installDir := inst.InstallDir
	if installDir == "" {
		installDir = SubtitleStyle.Render("(system)")
	}

	fmt.Fprintln(w, TitleStyle.Render("Runtime"))
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("source"), SuccessStyle.Render(inst.Source))
	fmt.Fprintf(w, "%s: %s-%s\n", KeyStyle.Render("platform"), inst.OS, inst.Arch)
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("version"), version)
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("interpreter"), inst.InterpreterPath)
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("package manager"), inst.PackageManagerPath)
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("package runner"), inst.PackageRunnerPath)
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("install dir"), installDir)
	fmt.Fprintf(w, "%s: %s\n", KeyStyle.Render("working dir"), inst.WorkingDir)
}
