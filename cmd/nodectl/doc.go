// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the nodectl CLI.
//
// The commands provision a JavaScript runtime under a base directory,
// install packages into its working directory and submit code to a
// long-lived interactive runtime, reporting how each submission ended.
package cmd
