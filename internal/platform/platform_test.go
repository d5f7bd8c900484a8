// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"fmt"
	"testing"
)

//nolint:gochecknoglobals // Shared read-only fixture.
var artifactFixtures = map[Platform][]string{
	{Linux, X64}:     {"node-v22.11.0-linux-x64.tar.gz", "node-v20.18.0-linux-amd64.tar.gz"},
	{Linux, ARM64}:   {"node-v22.11.0-linux-arm64.tar.gz"},
	{Linux, ARMv7}:   {"node-v22.11.0-linux-armv7l.tar.gz"},
	{Linux, PPC64LE}: {"node-v22.11.0-linux-ppc64le.tar.gz"},
	{Linux, S390X}:   {"node-v22.11.0-linux-s390x.tar.gz"},
	{Darwin, X64}:    {"node-v22.11.0-darwin-x64.tar.gz"},
	{Darwin, ARM64}:  {"node-v22.11.0-darwin-arm64.tar.gz"},
	{Windows, X64}:   {"node-v22.11.0-win-x64.zip"},
	{Windows, X86}:   {"node-v22.11.0-win-x86.zip"},
	{Windows, ARM64}: {"node-v22.11.0-win-arm64.zip"},
	{"beos", X64}:    {"node-v22.11.0-beos-x64.tar.gz"},
}

func TestMatchesDownloadArtifact_EveryPlatformHasAMatch(t *testing.T) {
	t.Parallel()

	for p, names := range artifactFixtures {
		if p.Validate() != nil {
			continue
		}
		t.Run(p.String(), func(t *testing.T) {
			t.Parallel()

			matched := false
			for _, name := range names {
				if p.MatchesDownloadArtifact(name) {
					matched = true
				}
			}
			if !matched {
				t.Errorf("no fixture matched %s in %v", p, names)
			}
		})
	}
}

func TestMatchesDownloadArtifact_RejectsOtherOSFamilies(t *testing.T) {
	t.Parallel()

	for p := range artifactFixtures {
		if p.Validate() != nil {
			continue
		}
		for other, names := range artifactFixtures {
			if other.OS == p.OS || other.Validate() != nil {
				continue
			}
			for _, name := range names {
				if p.MatchesDownloadArtifact(name) {
					t.Errorf("%s matched foreign artifact %q", p, name)
				}
			}
		}
	}
}

func TestMatchesDownloadArtifact_EdgeCases(t *testing.T) {
	t.Parallel()

	linux := Platform{OS: Linux, Arch: X64}
	win := Platform{OS: Windows, Arch: X64}

	tests := []struct {
		name string
		p    Platform
		file string
		want bool
	}{
		{"wrong extension for unix", linux, "node-v22.11.0-linux-x64.tar.xz", false},
		{"zip for unix", linux, "node-v22.11.0-linux-x64.zip", false},
		{"tar.gz for windows", win, "node-v22.11.0-win-x64.tar.gz", false},
		{"msi installer", win, "node-v22.11.0-x64.msi", false},
		{"arch alias x86_64", linux, "node-v22.11.0-linux-x86_64.tar.gz", true},
		{"case insensitive", linux, "NODE-V22.11.0-LINUX-X64.TAR.GZ", true},
		{"full url", linux, "https://nodejs.org/dist/latest/node-v22.11.0-linux-x64.tar.gz", true},
		{"arch mismatch", linux, "node-v22.11.0-linux-arm64.tar.gz", false},
		{"substring is not a token", linux, "node-v22.11.0-linuxish-x64.tar.gz", false},
		{"headers tarball", linux, "node-v22.11.0-headers.tar.gz", false},
		{"windows alias", win, "node-v22.11.0-windows-amd64.zip", true},
		{"darwin alias for mac", Platform{OS: Darwin, Arch: ARM64}, "node-v22.11.0-osx-arm64.tar.gz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.p.MatchesDownloadArtifact(tt.file); got != tt.want {
				t.Errorf("%s.MatchesDownloadArtifact(%q) = %v, want %v", tt.p, tt.file, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		probe        Probe
		want         Platform
		wantWarnings int
	}{
		{"linux amd64", Probe{GOOS: "linux", GOARCH: "amd64"}, Platform{Linux, X64}, 0},
		{"darwin arm64", Probe{GOOS: "darwin", GOARCH: "arm64"}, Platform{Darwin, ARM64}, 0},
		{"linux arm", Probe{GOOS: "linux", GOARCH: "arm"}, Platform{Linux, ARMv7}, 0},
		{"unknown os defaults to linux", Probe{GOOS: "plan9", GOARCH: "amd64"}, Platform{Linux, X64}, 1},
		{"unknown arch defaults to x64", Probe{GOOS: "linux", GOARCH: "mips"}, Platform{Linux, X64}, 1},
		{"both unknown", Probe{GOOS: "plan9", GOARCH: "mips"}, Platform{Linux, X64}, 2},
		{
			"wow64 process on 64-bit windows",
			Probe{GOOS: "windows", GOARCH: "386", Getenv: envMap(map[string]string{
				"PROCESSOR_ARCHITECTURE": "x86", "PROCESSOR_ARCHITEW6432": "AMD64",
			})},
			Platform{Windows, X64}, 0,
		},
		{
			"genuine 32-bit windows",
			Probe{GOOS: "windows", GOARCH: "386", Getenv: envMap(map[string]string{
				"PROCESSOR_ARCHITECTURE": "x86",
			})},
			Platform{Windows, X86}, 0,
		},
		{
			"unknown goarch falls back to env",
			Probe{GOOS: "windows", GOARCH: "", Getenv: envMap(map[string]string{
				"PROCESSOR_ARCHITECTURE": "ARM64",
			})},
			Platform{Windows, ARM64}, 0,
		},
		{"32-bit windows without env", Probe{GOOS: "windows", GOARCH: "386"}, Platform{Windows, X86}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, warnings := Resolve(tt.probe)
			if got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
			if len(warnings) != tt.wantWarnings {
				t.Errorf("got %d warnings %v, want %d", len(warnings), warnings, tt.wantWarnings)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("resolved platform is invalid: %v", err)
			}
		})
	}
}

func TestCurrent_IsValid(t *testing.T) {
	t.Parallel()

	p, _ := Current()
	if err := p.Validate(); err != nil {
		t.Fatalf("Current() returned invalid platform %s: %v", p, err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	err := Platform{OS: "beos", Arch: "m68k"}.Validate()
	if !errors.Is(err, ErrInvalidOSFamily) {
		t.Errorf("expected ErrInvalidOSFamily in %v", err)
	}
	if !errors.Is(err, ErrInvalidArchFamily) {
		t.Errorf("expected ErrInvalidArchFamily in %v", err)
	}

	var osErr *InvalidOSFamilyError
	if !errors.As(err, &osErr) || osErr.Value != "beos" {
		t.Errorf("expected *InvalidOSFamilyError for beos, got %v", err)
	}
}

func TestLayout(t *testing.T) {
	t.Parallel()

	win := Windows.Layout()
	if win.Interpreter != "node.exe" || win.PackageManager != "npm.cmd" || win.PackageRunner != "npx.cmd" {
		t.Errorf("unexpected windows layout: %+v", win)
	}

	unix := Linux.Layout()
	for _, p := range []string{unix.Interpreter, unix.PackageManager, unix.PackageRunner} {
		if p == "" || p[0] != 'b' {
			t.Errorf("unix executable %q should live under bin/", p)
		}
	}

	if got := fmt.Sprint(SystemLayout()); got == "" {
		t.Error("system layout should not be empty")
	}
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}
