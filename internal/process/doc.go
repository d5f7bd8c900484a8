// SPDX-License-Identifier: MPL-2.0

// Package process supervises a long-lived interactive child process.
//
// Launch verifies the executable, starts the child in its working directory,
// and attaches a stream.Subscription to stdout and stderr before anything can
// read from them, so no early output is lost. Stdin is exposed through Write,
// which flushes after every call.
//
// A watcher goroutine blocks in Wait and flips the process to StateStopped
// when the child exits on its own. Shutdown asks the child to exit (stdin EOF
// plus SIGTERM where available), waits for a bounded time and then kills it.
// Shutdown is idempotent.
package process
