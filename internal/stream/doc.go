// SPDX-License-Identifier: MPL-2.0

// Package stream fans the lines of a byte stream out to a dynamic set of
// listeners.
//
// Attach starts exactly one reader goroutine per source. Each decoded line is
// delivered synchronously, on that goroutine, to every listener registered at
// the moment of delivery, in registration order. Listeners may be added or
// removed from any goroutine at any time: the listener set is copy-on-write,
// so delivery always iterates an immutable snapshot.
//
// The reader stops at end of stream or on the first read error. It logs the
// cause, closes Done and never restarts.
package stream
