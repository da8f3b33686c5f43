// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/kdeploy/kdeploy/cmd/kdeploy"

func main() {
	cmd.Execute()
}
