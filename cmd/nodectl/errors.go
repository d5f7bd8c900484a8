// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/invowk/nodectl/internal/issue"
	"github.com/invowk/nodectl/internal/pkgmgr"
	"github.com/invowk/nodectl/internal/process"
	"github.com/invowk/nodectl/internal/provision"
	"github.com/invowk/nodectl/internal/runtime"
)

// classification maps sentinel errors to guidance and a short hint. Order
// matters: the first match wins.
var classification = []struct {
	target     error
	id         issue.Id
	suggestion string
}{
	{runtime.ErrSyntax, issue.SyntaxErrorId, "Fix the reported position or pass --syntax-check=false"},
	{runtime.ErrTimedOut, issue.ExecutionTimedOutId, "Raise the limit with --timeout"},
	{runtime.ErrExecutionFailed, issue.ExecutionFailedId, "Inspect the error lines above"},
	{runtime.ErrEmptyResult, issue.EmptyResultId, "Assign the value to return to `result`"},
	{provision.ErrNoMatchingArtifact, issue.NoMatchingArtifactId, "Install Node.js with your system package manager"},
	{provision.ErrMissingExecutable, issue.RuntimeNotExecutableId, "Remove the installation directory and retry"},
	{provision.ErrProvisioning, issue.RuntimeProvisionFailedId, "Check network access to the distribution index"},
	{pkgmgr.ErrInstallTimeout, issue.PackageInstallFailedId, "Raise package_manager.timeout_seconds"},
	{pkgmgr.ErrPackageInstall, issue.PackageInstallFailedId, "Check the package name for typos"},
	{process.ErrNotExecutable, issue.RuntimeLaunchFailedId, "Run the interpreter manually to see why it fails"},
	{fs.ErrPermission, issue.PermissionDeniedId, "Choose a writable directory with --base-dir"},
}

// describe attaches operation context and guidance to err unless it already
// carries guidance.
func describe(err error, operation string) error {
	if err == nil || issue.FromError(err) != nil {
		return err
	}
	ec := issue.NewErrorContext().WithOperation(operation).Wrap(err)
	for _, c := range classification {
		if errors.Is(err, c.target) {
			ec.WithIssue(c.id).WithSuggestion(c.suggestion)
			break
		}
	}
	return ec.BuildError()
}

// exitCode picks the process exit status for err.
func exitCode(err error) int {
	switch {
	case errors.Is(err, runtime.ErrTimedOut):
		return exitTimedOut
	case errors.Is(err, context.Canceled):
		return exitCanceled
	default:
		return exitFailure
	}
}

// fail renders suggestions, and in verbose mode the guidance page, then
// returns err with its exit code.
func (a *App) fail(err error, operation string) error {
	if err == nil {
		return nil
	}
	err = describe(err, operation)

	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.HasSuggestions() {
		for _, s := range ae.Suggestions {
			fmt.Fprintln(a.stderr, WarningStyle.Render("hint: ")+s)
		}
	}
	if a.flags.verbose {
		renderGuidance(a.stderr, err)
	}

	return &ExitError{Code: exitCode(err), Err: err}
}

func renderGuidance(w io.Writer, err error) {
	guide := issue.FromError(err)
	if guide == nil {
		return
	}
	rendered, rerr := guide.Render("")
	if rerr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}
