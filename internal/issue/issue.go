// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"errors"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	RuntimeProvisionFailedId
	NoMatchingArtifactId
	RuntimeNotExecutableId
	RuntimeLaunchFailedId
	PackageInstallFailedId
	ExecutionFailedId
	ExecutionTimedOutId
	SyntaxErrorId
	EmptyResultId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id
	mdMsg    MarkdownMsg
	docLinks []HttpLink
	extLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render turns the guidance into terminal markdown using the given glamour
// style ("" selects the default).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	links := append(slices.Clone(i.docLinks), i.extLinks...)
	if len(links) > 0 {
		md += "\n\n## See also\n"
		for _, link := range links {
			md += "\n- <" + string(link) + ">"
		}
	}
	if stylePath == "" {
		stylePath = "auto"
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	issues = map[Id]*Issue{
		ConfigLoadFailedId: {
			id: ConfigLoadFailedId,
			mdMsg: `
# Failed to load configuration!

nodectl reads ` + "`config.cue`" + ` from the directory passed with ` + "`--config`" + `,
then from the user config directory, then from the working directory.

## Configuration file locations:
- Linux: ~/.config/nodectl/config.cue
- macOS: ~/Library/Application Support/nodectl/config.cue
- Windows: %APPDATA%\nodectl\config.cue

## Things you can try:
- Print the effective configuration:
~~~
$ nodectl config show
~~~
- Remove the file to fall back to defaults

## Example configuration:
~~~cue
base_dir: "./nodectl-runtime"
packages: ["lodash"]
execution: {
  default_timeout_seconds: 30
  wrap: true
}
~~~`,
		},
		RuntimeProvisionFailedId: {
			id: RuntimeProvisionFailedId,
			mdMsg: `
# Could not provision the runtime!

No usable system ` + "`node`" + ` was found and downloading an official build failed.

## Things you can try:
- Install Node.js system-wide so nodectl can use it directly
- Check network access to the distribution index
- Point ` + "`index_url`" + ` at a mirror:
~~~cue
index_url: "https://mirror.example.com/node/latest/"
~~~
- Remove the installation directory and retry:
~~~
$ rm -rf ./nodectl-runtime/installation
$ nodectl install
~~~`,
			extLinks: []HttpLink{"https://nodejs.org/dist/latest/"},
		},
		NoMatchingArtifactId: {
			id: NoMatchingArtifactId,
			mdMsg: `
# No build for this platform!

The distribution index lists no archive for your operating system and CPU.

## Things you can try:
- Install Node.js with your system package manager
- Use a mirror that publishes builds for your platform`,
		},
		RuntimeNotExecutableId: {
			id: RuntimeNotExecutableId,
			mdMsg: `
# Runtime executables missing!

The installation directory exists but does not contain ` + "`node`" + `, ` + "`npm`" + ` and ` + "`npx`" + `.

## Things you can try:
- Remove the installation directory so it is downloaded again:
~~~
$ rm -rf ./nodectl-runtime/installation
~~~`,
		},
		RuntimeLaunchFailedId: {
			id: RuntimeLaunchFailedId,
			mdMsg: `
# Could not start the runtime!

The interactive runtime process failed to start or exited immediately.

## Things you can try:
- Run ` + "`node -i`" + ` manually to see its error output
- Re-run with ` + "`--verbose`" + ` to see the child's output`,
		},
		PackageInstallFailedId: {
			id: PackageInstallFailedId,
			mdMsg: `
# Package installation failed!

The package manager exited with a non-zero status.

## Things you can try:
- Check the package name for typos
- Review the package manager output shown above
- Verify registry access:
~~~
$ npm ping
~~~`,
		},
		ExecutionFailedId: {
			id: ExecutionFailedId,
			mdMsg: `
# Script raised an error!

The runtime reported an uncaught error or wrote to stderr.

## Things you can try:
- Read the collected error lines above
- Evaluate smaller pieces with ` + "`nodectl eval`" + ``,
		},
		ExecutionTimedOutId: {
			id: ExecutionTimedOutId,
			mdMsg: `
# Script timed out!

The completion marker was not printed before the deadline. The runtime may
still be busy with the script.

## Things you can try:
- Raise the limit with ` + "`--timeout`" + ` or ` + "`execution.default_timeout_seconds`" + `
- Make sure asynchronous work is awaited before the script ends`,
		},
		SyntaxErrorId: {
			id: SyntaxErrorId,
			mdMsg: `
# Script does not parse!

The preflight syntax check rejected the script before it reached the runtime.

## Things you can try:
- Fix the reported line and column
- Disable the check with ` + "`execution.syntax_check: false`" + ` for dialects it does not know`,
		},
		EmptyResultId: {
			id: EmptyResultId,
			mdMsg: `
# Script produced no result!

The script completed but never assigned ` + "`result`" + `.

## Example:
~~~js
result = JSON.stringify({ ok: true })
~~~`,
		},
		PermissionDeniedId: {
			id: PermissionDeniedId,
			mdMsg: `
# Permission denied!

nodectl could not write to its base directory.

## Things you can try:
- Choose a directory you own with ` + "`--base-dir`" + `
- Check the permissions of the existing base directory`,
		},
	}
)

// Values returns every known issue ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}

// FromError returns the guidance attached to the first ActionableError in
// err's chain, or nil.
func FromError(err error) *Issue {
	var ae *ActionableError
	if !errors.As(err, &ae) || ae.Issue == 0 {
		return nil
	}
	return Get(ae.Issue)
}
