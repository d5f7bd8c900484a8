// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/invowk/nodectl/internal/issue"
	"github.com/invowk/nodectl/internal/testutil"
)

func TestConfigShow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.cue")
	testutil.MustWriteFile(t, path, `packages: ["lodash"]
execution: default_timeout_seconds: 9
`, 0o644)

	stdout, _, err := runCLI(t, "", "config", "show", "--config", path, "--base-dir", "/opt/nodectl")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{
		`base_dir: "/opt/nodectl"`,
		`"lodash",`,
		"default_timeout_seconds: 9",
		"wrap: true",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestConfigShow_InvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.cue")
	testutil.MustWriteFile(t, path, `log: level: "loud"`, 0o644)

	_, stderr, err := runCLI(t, "", "config", "show", "--config", path)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFailure {
		t.Fatalf("expected ExitError with code %d, got %v", exitFailure, err)
	}
	if got := issue.FromError(err); got == nil || got.Id() != issue.ConfigLoadFailedId {
		t.Errorf("FromError() = %v, want config guidance", got)
	}
	if !strings.Contains(stderr, "hint:") {
		t.Errorf("stderr should carry suggestions:\n%s", stderr)
	}
}
