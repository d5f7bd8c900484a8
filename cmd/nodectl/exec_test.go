// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/invowk/nodectl/internal/config"
	"github.com/invowk/nodectl/internal/issue"
	"github.com/invowk/nodectl/internal/testutil"
)

func TestReadScript(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "script.js")
	testutil.MustWriteFile(t, path, "result = 1", 0o644)

	tests := []struct {
		name    string
		path    string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "file", path: path, want: "result = 1"},
		{name: "stdin", path: "-", stdin: "console.log(1)", want: "console.log(1)"},
		{name: "blank stdin", path: "-", stdin: "  \n", wantErr: true},
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.js"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := readScript(tt.path, strings.NewReader(tt.stdin))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readScript() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readScript() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecOptions_Request(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Execution.SyntaxCheck = true

	tests := []struct {
		name            string
		args            []string
		wantTimeout     time.Duration
		wantWrap        bool
		wantSyntaxCheck bool
	}{
		{name: "config defaults", wantTimeout: 30 * time.Second, wantWrap: true, wantSyntaxCheck: true},
		{name: "explicit zero timeout", args: []string{"--timeout=0"}, wantTimeout: 0, wantWrap: true, wantSyntaxCheck: true},
		{name: "overrides", args: []string{"--timeout=2s", "--no-wrap", "--syntax-check=false"}, wantTimeout: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := &execOptions{}
			fs := pflag.NewFlagSet("exec", pflag.ContinueOnError)
			opts.register(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatal(err)
			}

			req, syntaxCheck := opts.request(fs, cfg, "1 + 1")
			if req.Code != "1 + 1" {
				t.Errorf("Code = %q", req.Code)
			}
			if req.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", req.Timeout, tt.wantTimeout)
			}
			if req.Wrap != tt.wantWrap {
				t.Errorf("Wrap = %v, want %v", req.Wrap, tt.wantWrap)
			}
			if syntaxCheck != tt.wantSyntaxCheck {
				t.Errorf("syntax check = %v, want %v", syntaxCheck, tt.wantSyntaxCheck)
			}
		})
	}
}

func TestEval_ProvisioningFailure(t *testing.T) {
	t.Parallel()

	index := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(index.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.cue")
	content := `prefer_system: false
index_url: "` + index.URL + `/"
`
	testutil.MustWriteFile(t, cfgPath, content, 0o644)

	_, stderr, err := runCLI(t, "", "eval", "--config", cfgPath, "--base-dir", filepath.Join(dir, "base"), "1 + 1")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFailure {
		t.Fatalf("expected ExitError with code %d, got %v", exitFailure, err)
	}
	if got := issue.FromError(err); got == nil || got.Id() != issue.RuntimeProvisionFailedId {
		t.Errorf("FromError() = %v, want provisioning guidance", got)
	}
	if !strings.Contains(stderr, "distribution index") {
		t.Errorf("stderr should carry the provisioning hint:\n%s", stderr)
	}
}
