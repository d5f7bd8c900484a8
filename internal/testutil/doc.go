// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers that fail the test on error, reducing
// boilerplate in filesystem-heavy tests.
//
// The fakerepl subpackage is a stand-in interactive runtime that tests run
// by re-executing their own binary.
package testutil
