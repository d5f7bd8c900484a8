// SPDX-License-Identifier: MPL-2.0

// Package config loads nodectl configuration using Viper with CUE as the file format.
//
// Values are layered: built-in defaults, then the first config.cue found (the
// --config path, the user config directory, the current directory), then
// NODECTL_* environment variables such as NODECTL_EXECUTION_WRAP=false.
// Files are validated against the embedded config_schema.cue before they are
// merged, so unknown keys and ill-typed values are reported with their CUE path.
package config
