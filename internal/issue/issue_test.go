// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func stubRender(t *testing.T) {
	t.Helper()
	original := render
	t.Cleanup(func() { render = original })
	render = func(in string, _ string) (string, error) { return in, nil }
}

func TestGet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id       Id
		contains string
	}{
		{ConfigLoadFailedId, "Failed to load configuration"},
		{RuntimeProvisionFailedId, "Could not provision the runtime"},
		{NoMatchingArtifactId, "No build for this platform"},
		{RuntimeNotExecutableId, "Runtime executables missing"},
		{RuntimeLaunchFailedId, "Could not start the runtime"},
		{PackageInstallFailedId, "Package installation failed"},
		{ExecutionFailedId, "Script raised an error"},
		{ExecutionTimedOutId, "Script timed out"},
		{SyntaxErrorId, "Script does not parse"},
		{EmptyResultId, "Script produced no result"},
		{PermissionDeniedId, "Permission denied"},
	}

	for _, tt := range tests {
		t.Run(tt.contains, func(t *testing.T) {
			t.Parallel()
			i := Get(tt.id)
			if i == nil {
				t.Fatalf("Get(%d) returned nil", tt.id)
			}
			if i.Id() != tt.id {
				t.Errorf("Id() = %d, want %d", i.Id(), tt.id)
			}
			if !strings.Contains(string(i.MarkdownMsg()), tt.contains) {
				t.Errorf("MarkdownMsg() should contain %q", tt.contains)
			}
		})
	}

	if Get(Id(9999)) != nil {
		t.Error("Get(9999) should return nil")
	}
}

func TestValues(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != len(issues) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), len(issues))
	}
	for n, i := range values {
		if i.Id() != Id(n+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", n, i.Id(), n+1)
		}
		if i.MarkdownMsg() == "" {
			t.Errorf("issue %d has empty markdown", i.Id())
		}
	}
}

func TestIssue_LinksAreCloned(t *testing.T) {
	t.Parallel()

	i := Get(RuntimeProvisionFailedId)
	links := i.ExtLinks()
	if len(links) == 0 {
		t.Fatal("expected external links")
	}
	original := links[0]
	links[0] = "modified"
	if i.ExtLinks()[0] != original {
		t.Error("ExtLinks() should return a clone")
	}
}

//nolint:paralleltest // mutates the package-level renderer
func TestIssue_Render(t *testing.T) {
	stubRender(t)

	withLinks := &Issue{
		id:       Id(9999),
		mdMsg:    "# Test Issue",
		docLinks: []HttpLink{"https://docs.example.com"},
		extLinks: []HttpLink{"https://external.example.com"},
	}
	out, err := withLinks.Render("")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{"See also", "https://docs.example.com", "https://external.example.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q", want)
		}
	}

	out, err = (&Issue{id: Id(9998), mdMsg: "# No links"}).Render("")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out, "See also") {
		t.Error("Render() without links should not contain 'See also'")
	}

	for _, i := range Values() {
		if out, err := i.Render("notty"); err != nil || out == "" {
			t.Errorf("issue %d failed to render: %v", i.Id(), err)
		}
	}
}

func TestFromError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("exec: %w", NewErrorContext().
		WithOperation("run script").
		WithIssue(ExecutionTimedOutId).
		Wrap(errors.New("deadline")).
		BuildError())
	if got := FromError(err); got == nil || got.Id() != ExecutionTimedOutId {
		t.Errorf("FromError() = %v, want issue %d", got, ExecutionTimedOutId)
	}

	if FromError(errors.New("plain")) != nil {
		t.Error("FromError(plain) should be nil")
	}
	if FromError(WrapWithOperation(errors.New("x"), "op")) != nil {
		t.Error("FromError() without an attached issue should be nil")
	}
}
