// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"fmt"
	"os"
	goruntime "runtime"
	"strings"
	"sync"
)

// OS families with a published runtime build.
const (
	Linux   OSFamily = "linux"
	Darwin  OSFamily = "darwin"
	Windows OSFamily = "windows"
)

// Architecture families with a published runtime build.
const (
	X64     ArchFamily = "x64"
	X86     ArchFamily = "x86"
	ARM64   ArchFamily = "arm64"
	ARMv7   ArchFamily = "armv7l"
	PPC64LE ArchFamily = "ppc64le"
	S390X   ArchFamily = "s390x"
)

var (
	// ErrInvalidOSFamily is returned when an OSFamily value is not recognized.
	ErrInvalidOSFamily = errors.New("invalid OS family")
	// ErrInvalidArchFamily is returned when an ArchFamily value is not recognized.
	ErrInvalidArchFamily = errors.New("invalid architecture family")

	//nolint:gochecknoglobals // Host resolution is computed once per process.
	currentOnce = sync.OnceValues(func() (Platform, []string) {
		return Resolve(HostProbe())
	})
)

type (
	// OSFamily identifies an operating system family as named in runtime artifacts.
	OSFamily string

	// ArchFamily identifies a CPU architecture family as named in runtime artifacts.
	ArchFamily string

	// Platform is a resolved (OS family, architecture family) pair.
	Platform struct {
		OS   OSFamily
		Arch ArchFamily
	}

	// Probe carries the environment signals used for resolution. HostProbe
	// fills it from the running process; tests construct it directly.
	Probe struct {
		GOOS   string
		GOARCH string
		Getenv func(string) string
	}

	// InvalidOSFamilyError is returned when an OSFamily value is not recognized.
	// It wraps ErrInvalidOSFamily for errors.Is() compatibility.
	InvalidOSFamilyError struct {
		Value OSFamily
	}

	// InvalidArchFamilyError is returned when an ArchFamily value is not recognized.
	// It wraps ErrInvalidArchFamily for errors.Is() compatibility.
	InvalidArchFamilyError struct {
		Value ArchFamily
	}
)

// Error implements the error interface.
func (e *InvalidOSFamilyError) Error() string {
	return fmt.Sprintf("invalid OS family %q (valid: linux, darwin, windows)", e.Value)
}

// Unwrap returns ErrInvalidOSFamily.
func (e *InvalidOSFamilyError) Unwrap() error { return ErrInvalidOSFamily }

// Error implements the error interface.
func (e *InvalidArchFamilyError) Error() string {
	return fmt.Sprintf("invalid architecture family %q", e.Value)
}

// Unwrap returns ErrInvalidArchFamily.
func (e *InvalidArchFamilyError) Unwrap() error { return ErrInvalidArchFamily }

// String returns the artifact token for the OS family.
func (o OSFamily) String() string { return string(o) }

// Validate returns an *InvalidOSFamilyError if o is not a known family.
func (o OSFamily) Validate() error {
	switch o {
	case Linux, Darwin, Windows:
		return nil
	}
	return &InvalidOSFamilyError{Value: o}
}

// String returns the artifact token for the architecture family.
func (a ArchFamily) String() string { return string(a) }

// Validate returns an *InvalidArchFamilyError if a is not a known family.
func (a ArchFamily) Validate() error {
	switch a {
	case X64, X86, ARM64, ARMv7, PPC64LE, S390X:
		return nil
	}
	return &InvalidArchFamilyError{Value: a}
}

// String returns "<os>-<arch>", the form used in artifact names.
func (p Platform) String() string {
	return string(p.OS) + "-" + string(p.Arch)
}

// Validate checks both families.
func (p Platform) Validate() error {
	return errors.Join(p.OS.Validate(), p.Arch.Validate())
}

// HostProbe returns a Probe describing the running process.
func HostProbe() Probe {
	return Probe{
		GOOS:   goruntime.GOOS,
		GOARCH: goruntime.GOARCH,
		Getenv: os.Getenv,
	}
}

// Current returns the resolved host platform. The result is computed once;
// the warnings slice is shared and must not be modified.
func Current() (Platform, []string) {
	return currentOnce()
}

// Resolve maps the probe onto a Platform. It never fails; defaults applied
// for unknown inputs are reported as warnings.
func Resolve(p Probe) (Platform, []string) {
	if p.Getenv == nil {
		p.Getenv = func(string) string { return "" }
	}

	var warnings []string

	osFamily, ok := osFromGOOS(p.GOOS)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("unknown operating system %q, assuming %s", p.GOOS, Linux))
		osFamily = Linux
	}

	arch, ok := archFromGOARCH(p.GOARCH)
	switch {
	case !ok:
		if envArch, envOK := archFromEnv(p.Getenv); envOK {
			arch = envArch
		} else {
			warnings = append(warnings, fmt.Sprintf("unknown architecture %q, assuming %s", p.GOARCH, X64))
			arch = X64
		}
	case osFamily == Windows && arch == X86:
		// A 32-bit process on Windows does not tell us the OS bitness.
		if envArch, envOK := archFromEnv(p.Getenv); envOK {
			arch = envArch
		}
	}

	return Platform{OS: osFamily, Arch: arch}, warnings
}

func osFromGOOS(goos string) (OSFamily, bool) {
	switch strings.ToLower(goos) {
	case "linux", "android":
		return Linux, true
	case "darwin", "ios":
		return Darwin, true
	case "windows":
		return Windows, true
	}
	return "", false
}

func archFromGOARCH(goarch string) (ArchFamily, bool) {
	switch strings.ToLower(goarch) {
	case "amd64":
		return X64, true
	case "386":
		return X86, true
	case "arm64":
		return ARM64, true
	case "arm":
		return ARMv7, true
	case "ppc64le":
		return PPC64LE, true
	case "s390x":
		return S390X, true
	}
	return "", false
}

// archFromEnv applies the Windows processor-architecture heuristic.
// PROCESSOR_ARCHITEW6432 is only set for WOW64 processes and names the
// native architecture, so it wins over PROCESSOR_ARCHITECTURE.
func archFromEnv(getenv func(string) string) (ArchFamily, bool) {
	for _, key := range []string{"PROCESSOR_ARCHITEW6432", "PROCESSOR_ARCHITECTURE"} {
		switch strings.ToUpper(strings.TrimSpace(getenv(key))) {
		case "AMD64", "X64", "EM64T":
			return X64, true
		case "ARM64":
			return ARM64, true
		case "X86", "I386", "I686":
			return X86, true
		}
	}
	return "", false
}
