// SPDX-License-Identifier: MPL-2.0

// Package runtime runs code on a long-lived interactive JavaScript console.
//
// An Engine writes each request to a script file in the working directory,
// asks the console to load it and watches the console's output for a
// per-request completion sentinel. Errors are recognized from stderr lines
// and from the console's own "Uncaught" reports; a request therefore ends as
// completed, failed, timed out or cancelled. Requests are serialized.
//
// ExecuteAndGetResult additionally reads the value the code assigned to the
// global `result` through a handoff file that is cleared before and after
// every read.
//
// A Session ties an Engine to a provisioned runtime process and owns its
// lifecycle.
package runtime
