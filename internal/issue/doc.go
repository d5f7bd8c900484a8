// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors for the CLI.
//
// An ActionableError names the failed operation, the resource involved and
// remediation hints. It may point at an Issue, a markdown guidance page that
// is rendered with glamour when a command fails.
package issue
