// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"path"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// unixArchiveExt is the archive extension published for Linux and macOS.
	unixArchiveExt = ".tar.gz"
	// windowsArchiveExt is the archive extension published for Windows.
	windowsArchiveExt = ".zip"
)

type (
	// Layout holds executable paths relative to an extracted runtime root.
	Layout struct {
		Interpreter    string
		PackageManager string
		PackageRunner  string
	}
)

//nolint:gochecknoglobals // Read-only alias tables.
var (
	osAliases = map[OSFamily][]string{
		Linux:   {"linux"},
		Darwin:  {"darwin", "osx", "mac", "macos"},
		Windows: {"win", "windows", "win32"},
	}

	archAliases = map[ArchFamily][]string{
		X64:     {"x64", "amd64", "x86_64"},
		X86:     {"x86", "386", "i386", "i686", "ia32"},
		ARM64:   {"arm64", "aarch64"},
		ARMv7:   {"armv7l", "armv7", "armhf"},
		PPC64LE: {"ppc64le"},
		S390X:   {"s390x"},
	}
)

// ArchiveExt returns the archive extension published for the OS family.
func (o OSFamily) ArchiveExt() string {
	if o == Windows {
		return windowsArchiveExt
	}
	return unixArchiveExt
}

// MatchesDownloadArtifact reports whether filename names the runtime archive
// for p: the name must carry an alias of p.OS and an alias of p.Arch as
// dash-separated tokens and end with the OS family's archive extension.
// Only the base name of filename is inspected, so URLs and hrefs work too.
func (p Platform) MatchesDownloadArtifact(filename string) bool {
	name := strings.ToLower(path.Base(strings.TrimSpace(filename)))
	ext := p.OS.ArchiveExt()
	if !strings.HasSuffix(name, ext) {
		return false
	}

	tokens := strings.Split(strings.TrimSuffix(name, ext), "-")
	return containsAny(tokens, osAliases[p.OS]) && containsAny(tokens, archAliases[p.Arch])
}

// Layout returns where the interpreter, package manager and package runner
// live inside an extracted archive for the OS family.
func (o OSFamily) Layout() Layout {
	if o == Windows {
		return Layout{
			Interpreter:    "node.exe",
			PackageManager: "npm.cmd",
			PackageRunner:  "npx.cmd",
		}
	}
	return Layout{
		Interpreter:    filepath.Join("bin", "node"),
		PackageManager: filepath.Join("bin", "npm"),
		PackageRunner:  filepath.Join("bin", "npx"),
	}
}

// SystemLayout returns the bare command names used when the runtime is
// installed system-wide and resolved through PATH.
func SystemLayout() Layout {
	return Layout{
		Interpreter:    "node",
		PackageManager: "npm",
		PackageRunner:  "npx",
	}
}

func containsAny(tokens, aliases []string) bool {
	for _, alias := range aliases {
		if slices.Contains(tokens, alias) {
			return true
		}
	}
	return false
}
