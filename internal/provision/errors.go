// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"

	"github.com/invowk/nodectl/internal/platform"
)

var (
	// ErrProvisioning is the sentinel wrapped by every ProvisioningError.
	ErrProvisioning = errors.New("runtime provisioning failed")

	// ErrNoMatchingArtifact is returned when the index page lists no archive
	// for the resolved platform.
	ErrNoMatchingArtifact = errors.New("no matching runtime artifact")

	// ErrMissingExecutable is returned when an expected executable is absent
	// from the installation.
	ErrMissingExecutable = errors.New("runtime executable missing")

	// ErrUnsafeArchivePath is returned when an archive entry would be written
	// outside the extraction directory.
	ErrUnsafeArchivePath = errors.New("archive entry escapes extraction directory")

	// ErrArchiveTooLarge is returned when a download or an extracted entry
	// exceeds its size limit.
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
)

type (
	// ProvisioningError reports a failed provisioning step along with the
	// platform being provisioned. It matches both ErrProvisioning and the
	// underlying cause with errors.Is.
	ProvisioningError struct {
		Op   string
		OS   platform.OSFamily
		Arch platform.ArchFamily
		Err  error
	}
)

// Error implements the error interface.
func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning runtime for %s-%s: %s: %v", e.OS, e.Arch, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ProvisioningError) Unwrap() []error {
	return []error{ErrProvisioning, e.Err}
}
