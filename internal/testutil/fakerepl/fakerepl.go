// SPDX-License-Identifier: MPL-2.0

// Package fakerepl is a small stand-in for the interactive runtime console,
// backed by goja, for hermetic tests of the execution protocol.
//
// It reads newline-terminated commands from stdin, prints "> " prompts,
// understands ".load <path>" and ".exit", and evaluates anything else as a
// statement in one persistent global scope. console.log writes to stdout,
// console.error to stderr, and exceptions that escape a statement are
// reported on stdout as "Uncaught <name>: <message>", the way the real
// console does. require('fs') offers writeFileSync, readFileSync,
// existsSync and unlinkSync.
//
// Tests typically re-exec their own binary as the runtime:
//
//	func TestMain(m *testing.M) {
//		if os.Getenv(fakerepl.EnvVar) == "1" {
//			os.Exit(fakerepl.Main())
//		}
//		os.Exit(m.Run())
//	}
package fakerepl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dop251/goja"
)

// EnvVar selects the fake runtime in a re-executed test binary.
const EnvVar = "NODECTL_FAKE_REPL"

const prompt = "> "

type repl struct {
	vm     *goja.Runtime
	stdout io.Writer
	stderr io.Writer
}

// Main runs the fake console on the process's standard streams.
func Main() int {
	return Run(os.Stdin, os.Stdout, os.Stderr)
}

// Run serves commands from in until EOF or ".exit" and returns the exit code.
func Run(in io.Reader, stdout, stderr io.Writer) int {
	r := &repl{vm: goja.New(), stdout: stdout, stderr: stderr}
	r.install()

	br := bufio.NewReader(in)
	for {
		fmt.Fprint(r.stdout, prompt)
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			if exit := r.handle(line); exit {
				return 0
			}
		}
		if err != nil {
			return 0
		}
	}
}

// handle runs one console command and reports whether the console should exit.
func (r *repl) handle(line string) bool {
	switch {
	case line == ".exit":
		return true
	case strings.HasPrefix(line, ".load "):
		path := strings.TrimSpace(strings.TrimPrefix(line, ".load "))
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(r.stdout, "Failed to load: %s\n", path)
			return false
		}
		r.eval(string(src))
	case strings.HasPrefix(line, "."):
		fmt.Fprintln(r.stdout, "Invalid REPL keyword")
	default:
		r.eval(line)
	}
	return false
}

func (r *repl) eval(src string) {
	v, err := r.vm.RunString(src)
	if err != nil {
		fmt.Fprintln(r.stdout, "Uncaught "+r.describe(err))
		return
	}
	fmt.Fprintln(r.stdout, inspect(v))
}

// describe renders an escaped exception as the console would.
func (r *repl) describe(err error) string {
	switch e := err.(type) {
	case *goja.Exception:
		val := e.Value()
		if obj, ok := val.(*goja.Object); ok {
			name, msg := obj.Get("name"), obj.Get("message")
			if name != nil && msg != nil && !goja.IsUndefined(name) {
				return name.String() + ": " + msg.String()
			}
		}
		return inspect(val)
	case *goja.CompilerSyntaxError:
		return "SyntaxError: " + e.Message
	default:
		return err.Error()
	}
}

func (r *repl) install() {
	console := r.vm.NewObject()
	_ = console.Set("log", r.printer(r.stdout))
	_ = console.Set("info", r.printer(r.stdout))
	_ = console.Set("error", r.printer(r.stderr))
	_ = console.Set("warn", r.printer(r.stderr))
	_ = r.vm.Set("console", console)

	fs := r.vm.NewObject()
	_ = fs.Set("writeFileSync", func(path, data string) {
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			panic(r.vm.NewGoError(err))
		}
	})
	_ = fs.Set("readFileSync", func(path string) string {
		data, err := os.ReadFile(path)
		if err != nil {
			panic(r.vm.NewGoError(err))
		}
		return string(data)
	})
	_ = fs.Set("existsSync", func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	})
	_ = fs.Set("unlinkSync", func(path string) {
		if err := os.Remove(path); err != nil {
			panic(r.vm.NewGoError(err))
		}
	})

	_ = r.vm.Set("require", func(name string) *goja.Object {
		if name == "fs" {
			return fs
		}
		panic(r.vm.NewTypeError("Cannot find module '%s'", name))
	})
}

func (r *repl) printer(w io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func inspect(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if s, ok := v.Export().(string); ok {
		return "'" + s + "'"
	}
	return v.String()
}
