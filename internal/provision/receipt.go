// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/invowk/nodectl/internal/platform"
)

const receiptName = ".nodectl-receipt.toml"

type (
	// Receipt records which artifact produced an installation.
	Receipt struct {
		Artifact    string              `toml:"artifact"`
		Version     string              `toml:"version"`
		URL         string              `toml:"url"`
		OS          platform.OSFamily   `toml:"os"`
		Arch        platform.ArchFamily `toml:"arch"`
		InstalledAt time.Time           `toml:"installed_at"`
	}
)

// writeReceipt stores r in installDir. It is written last, so a receipt
// implies a complete extraction.
func writeReceipt(installDir string, r Receipt) error {
	data, err := toml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}
	if err := os.WriteFile(filepath.Join(installDir, receiptName), data, 0o644); err != nil {
		return fmt.Errorf("writing receipt: %w", err)
	}
	return nil
}

// readReceipt loads the receipt from installDir. A missing receipt is not an
// error: installations copied in by hand have none.
func readReceipt(installDir string) (Receipt, bool, error) {
	data, err := os.ReadFile(filepath.Join(installDir, receiptName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Receipt{}, false, nil
		}
		return Receipt{}, false, fmt.Errorf("reading receipt: %w", err)
	}

	var r Receipt
	if err := toml.Unmarshal(data, &r); err != nil {
		return Receipt{}, false, fmt.Errorf("parsing receipt: %w", err)
	}
	return r, true, nil
}
