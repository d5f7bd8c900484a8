// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNpmCommand(app *App) *cobra.Command {
	npmCmd := &cobra.Command{
		Use:   "npm",
		Short: "Manage packages in the runtime working directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	npmCmd.AddCommand(&cobra.Command{
		Use:   "install [package...]",
		Short: "Install packages into the working directory",
		Long: `Install packages into <base-dir>/working-dir.

Without arguments the packages listed in the configuration are installed;
when none are configured the working directory's declared dependencies are
installed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.settings(ctx)
			if err != nil {
				return app.fail(err, "load configuration")
			}
			inst, err := app.provisioner(cfg).EnsureInstalled(ctx)
			if err != nil {
				return app.fail(err, "provision runtime")
			}

			pkgs := args
			if len(pkgs) == 0 {
				pkgs = cfg.Packages
			}
			if len(pkgs) == 0 {
				pkgs = []string{""}
			}

			bridge := app.packageBridge(cfg, inst)
			for _, pkg := range pkgs {
				name := pkg
				if name == "" {
					name = "dependencies"
				}
				if err := bridge.Install(ctx, pkg); err != nil {
					return app.fail(err, "install "+name)
				}
				fmt.Fprintf(app.stdout, "%s installed %s\n", SuccessStyle.Render("✓"), name)
			}
			return nil
		},
	})

	return npmCmd
}
