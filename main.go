// SPDX-License-Identifier: MPL-2.0

package main

import cmd "lambdado-cli/cmd/lambdado"

func main() {
	cmd.Execute()
}
