// SPDX-License-Identifier: MPL-2.0

//go:build windows

package process

// terminate is a no-op on Windows; there is no SIGTERM equivalent for a
// console child, so closing stdin is the only graceful request.
func terminate(int) error { return nil }

// probe cannot cheaply check a pid on Windows; the Wait watcher is
// authoritative there.
func probe(int) bool { return true }
