// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/invowk/nodectl/internal/config"
	"github.com/invowk/nodectl/internal/runtime"
)

type execOptions struct {
	timeout     time.Duration
	noWrap      bool
	syntaxCheck bool
	result      bool
}

func (o *execOptions) register(fs *pflag.FlagSet) {
	fs.DurationVar(&o.timeout, "timeout", 0, "wait at most this long for the code to finish; 0 waits forever (default from config)")
	fs.BoolVar(&o.noWrap, "no-wrap", false, "submit the code without the error-capturing wrapper")
	fs.BoolVar(&o.syntaxCheck, "syntax-check", false, "parse the code locally before submitting it (default from config)")
	fs.BoolVar(&o.result, "result", false, "print the value the code assigns to `result`")
}

// request resolves flags against the configuration. Flags that were not set
// on the command line fall back to the config values.
func (o *execOptions) request(fs *pflag.FlagSet, cfg *config.Config, code string) (runtime.Request, bool) {
	req := runtime.Request{
		Code:    code,
		Timeout: cfg.Execution.DefaultTimeout(),
		Wrap:    cfg.Execution.Wrap && !o.noWrap,
	}
	if fs.Changed("timeout") {
		req.Timeout = o.timeout
	}
	syntaxCheck := cfg.Execution.SyntaxCheck
	if fs.Changed("syntax-check") {
		syntaxCheck = o.syntaxCheck
	}
	return req, syntaxCheck
}

func newExecCommand(app *App) *cobra.Command {
	opts := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec [file|-]",
		Short: "Run a script file on the runtime",
		Long: `Run a script on a fresh runtime session.

The script is read from the given file, or from standard input when the
argument is "-" or omitted. Configured packages are installed first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			code, err := readScript(path, app.stdin)
			if err != nil {
				return app.fail(err, "read script")
			}
			return runCode(cmd, app, opts, code)
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func newEvalCommand(app *App) *cobra.Command {
	opts := &execOptions{}
	cmd := &cobra.Command{
		Use:   "eval <code>...",
		Short: "Run a snippet on the runtime",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCode(cmd, app, opts, strings.Join(args, " "))
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func readScript(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("script is empty")
	}
	return string(data), nil
}

func runCode(cmd *cobra.Command, app *App, opts *execOptions, code string) error {
	ctx := cmd.Context()
	cfg, err := app.settings(ctx)
	if err != nil {
		return app.fail(err, "load configuration")
	}
	req, syntaxCheck := opts.request(cmd.Flags(), cfg, code)

	sess, err := app.session(ctx, cfg, syntaxCheck)
	if err != nil {
		return app.fail(err, "start runtime session")
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			app.logger.Warn("closing session", "err", cerr)
		}
	}()

	if opts.result {
		out, rerr := sess.ExecuteAndGetResult(ctx, req)
		if rerr != nil {
			return app.fail(rerr, "run script")
		}
		fmt.Fprintln(app.stdout, out)
		return nil
	}

	outcome, rerr := sess.Execute(ctx, req)
	printOutcome(app.stderr, outcome)
	if rerr != nil {
		return app.fail(rerr, "run script")
	}
	return nil
}

func printOutcome(w io.Writer, outcome runtime.Outcome) {
	name := outcome.String()
	style, ok := outcomeStyles[name]
	if !ok {
		style = SubtitleStyle
	}
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("outcome:"), style.Render(name))
}
