// SPDX-License-Identifier: MPL-2.0

// nodectl provisions a JavaScript runtime and runs code on it.
package main

import cmd "github.com/invowk/nodectl/cmd/nodectl"

func main() {
	cmd.Execute()
}
