// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package pkgmgr

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/invowk/nodectl/internal/metrics"
	nodetest "github.com/invowk/nodectl/internal/testutil"
)

// fakeManager writes a package manager stand-in that reports its working
// directory and arguments and exits with $FAKE_EXIT.
func fakeManager(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake npm")
	script := "#!/bin/sh\n" + body + "\n"
	return nodetest.MustWriteFile(t, path, script, 0o755)
}

const reportingManager = `echo "cwd=$(pwd)"
echo "args=$*"
exit ${FAKE_EXIT:-0}`

func TestInstallSuccess(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	_, m := metrics.NewRegistry()
	b := New(fakeManager(t, reportingManager), workDir, WithMetrics(m), WithTimeout(30*time.Second))

	if err := b.Install(context.Background(), "left-pad"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if got := testutil.ToFloat64(m.PackageInstalls.WithLabelValues("success")); got != 1 {
		t.Errorf("success metric = %v, want 1", got)
	}
}

func TestInstallNonZeroExit(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	_, m := metrics.NewRegistry()
	b := New(fakeManager(t, reportingManager), workDir, WithEnv("FAKE_EXIT=3"), WithMetrics(m))

	err := b.Install(context.Background(), "it's quoted")
	if !errors.Is(err, ErrPackageInstall) {
		t.Fatalf("Install() error = %v, want ErrPackageInstall", err)
	}
	var ierr *PackageInstallError
	if !errors.As(err, &ierr) {
		t.Fatalf("error %T is not a *PackageInstallError", err)
	}
	if ierr.ExitCode != 3 || ierr.Package != "it's quoted" {
		t.Errorf("PackageInstallError = %+v, want exit 3 for the package", ierr)
	}

	resolved, _ := filepath.EvalSymlinks(workDir)
	if !slices.ContainsFunc(ierr.Output, func(l string) bool {
		return strings.Contains(l, "cwd="+workDir) || strings.Contains(l, "cwd="+resolved)
	}) {
		t.Errorf("output does not show the install ran in %s:\n%s", workDir, strings.Join(ierr.Output, "\n"))
	}
	if !slices.ContainsFunc(ierr.Output, func(l string) bool { return strings.Contains(l, "args=install it's quoted") }) {
		t.Errorf("output does not show the quoted package argument:\n%s", strings.Join(ierr.Output, "\n"))
	}
	if got := testutil.ToFloat64(m.PackageInstalls.WithLabelValues("failure")); got != 1 {
		t.Errorf("failure metric = %v, want 1", got)
	}
}

func TestInstallDependencies(t *testing.T) {
	t.Parallel()

	b := New(fakeManager(t, `[ "$*" = "install" ] || exit 9`), t.TempDir())
	if err := b.Install(context.Background(), ""); err != nil {
		t.Fatalf("Install() of declared dependencies error = %v", err)
	}
}

func TestInstallTimeout(t *testing.T) {
	t.Parallel()

	b := New(fakeManager(t, "sleep 10"), t.TempDir(), WithTimeout(300*time.Millisecond))

	start := time.Now()
	err := b.Install(context.Background(), "slow")
	if !errors.Is(err, ErrInstallTimeout) || !errors.Is(err, ErrPackageInstall) {
		t.Fatalf("Install() error = %v, want ErrInstallTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Install() took %v, want it bounded by the timeout", elapsed)
	}
	var ierr *PackageInstallError
	if errors.As(err, &ierr) && ierr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 when no status was reported", ierr.ExitCode)
	}
}

func TestCommandLinesSplitSentinel(t *testing.T) {
	t.Parallel()

	b := New("/opt/node dir/bin/npm", "/tmp/work dir")
	lines, err := b.commandLines("lodash", "abc")
	if err != nil {
		t.Fatalf("commandLines() error = %v", err)
	}
	want := []string{
		"cd '/tmp/work dir'",
		"'/opt/node dir/bin/npm' install lodash",
		`echo "__npm""_done_abc:$?"`,
	}
	if !slices.Equal(lines, want) {
		t.Errorf("commandLines() =\n%q\nwant\n%q", lines, want)
	}
	for _, l := range lines {
		if strings.Contains(l, sentinelPrefix) {
			t.Errorf("line %q contains the joined sentinel", l)
		}
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		code   int
		wantOK bool
	}{
		{"__npm_done_x:0", 0, true},
		{"$ __npm_done_x:127\r", 127, true},
		{`echo "__npm""_done_x:$?"`, 0, false},
		{"__npm_done_x:", 0, false},
		{"unrelated", 0, false},
	}
	for _, tt := range tests {
		code, ok := parseStatus(tt.line, "__npm_done_x:")
		if ok != tt.wantOK || code != tt.code {
			t.Errorf("parseStatus(%q) = %d, %v; want %d, %v", tt.line, code, ok, tt.code, tt.wantOK)
		}
	}
}
