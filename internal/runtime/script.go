// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

const (
	sentinelPrefix = "__done_"
	errorPrefix    = "__error_"
)

// wrapScript appends the completion log line for id and, when wrap is set,
// guards code with a try/catch that reports the exception to stderr.
//
// The sentinel is emitted as a concatenation so that a console echoing the
// script back never prints the full marker.
func wrapScript(code, id string, wrap bool) string {
	done := fmt.Sprintf("console.log('%s' + '%s');", sentinelPrefix, id)
	if !wrap {
		return code + "\n;" + done + "\n"
	}

	var b strings.Builder
	b.WriteString("try {\n")
	b.WriteString(code)
	b.WriteString("\n;")
	b.WriteString(done)
	b.WriteString("\n} catch (__err) {\n")
	fmt.Fprintf(&b, "console.error('%s' + '%s', ", errorPrefix, id)
	b.WriteString("(__err && __err.name) + ': ' + (__err && __err.message) + '\\n' + (__err && __err.stack));\n")
	b.WriteString("}\n")
	return b.String()
}

// handoffStatement serializes the result variable into path.
func handoffStatement(path string) string {
	return fmt.Sprintf("\n;require('fs').writeFileSync(%s, typeof result === 'undefined' ? '' : String(result));", jsString(path))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s) //nolint:errchkjson // strings always marshal
	return string(b)
}

// checkSyntax parses code without running it.
func checkSyntax(code string) error {
	result := api.Transform(code, api.TransformOptions{Loader: api.LoaderJS})
	if len(result.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for _, m := range result.Errors {
		if m.Location != nil {
			msgs = append(msgs, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		msgs = append(msgs, m.Text)
	}
	return fmt.Errorf("%w: %s", ErrSyntax, strings.Join(msgs, "; "))
}

// consoleUncaught reports whether a prompt-stripped stdout line is the
// console's own report of an escaped exception. Wrapped code sends runtime
// exceptions to stderr, so only a file that fails to parse reaches the
// console that way.
func consoleUncaught(line string, wrapped bool) bool {
	if wrapped {
		return strings.HasPrefix(line, "Uncaught SyntaxError")
	}
	return strings.HasPrefix(line, "Uncaught ")
}

// stripPrompt removes leading console prompts from a stdout line.
func stripPrompt(line string) string {
	for {
		switch {
		case strings.HasPrefix(line, "> "):
			line = line[2:]
		case strings.HasPrefix(line, "... "):
			line = line[4:]
		default:
			return line
		}
	}
}
