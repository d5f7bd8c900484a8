// SPDX-License-Identifier: MPL-2.0

// Package metrics defines the Prometheus collectors for runtime provisioning,
// code execution and package installation.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional *Metrics without guarding every call site.
package metrics
