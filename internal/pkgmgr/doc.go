// SPDX-License-Identifier: MPL-2.0

// Package pkgmgr drives the runtime's package manager to install
// dependencies into the working directory.
//
// The package manager expects a real terminal, so on unix the Bridge runs
// a shell inside a pseudo-terminal, types the cd and install command lines
// into it, and then echoes a per-install sentinel carrying the install's
// exit status. The sentinel is written split in two quoted halves, so the
// terminal echoing the command line never produces the joined marker.
// On Windows the install runs through a piped cmd.exe instead.
package pkgmgr
