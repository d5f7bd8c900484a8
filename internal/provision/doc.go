// SPDX-License-Identifier: MPL-2.0

// Package provision makes sure a usable runtime installation exists for the
// current platform.
//
// A Provisioner prefers a runtime already on PATH. Otherwise it scans the
// published index page for the archive matching the platform, downloads and
// extracts it under the base directory and records an install receipt, so
// later calls resolve the installation without touching the network:
//
//	p := provision.New(provision.WithBaseDir("./nodectl-runtime"))
//	inst, err := p.EnsureInstalled(ctx)
//	// inst.InterpreterPath, inst.WorkingDir, ...
//
// Layout under the base directory:
//
//	installation/  extracted runtime and .nodectl-receipt.toml
//	working-dir/   scratch directory for scripts and the result handoff file
//	downloads/     transient; removed after extraction
package provision
