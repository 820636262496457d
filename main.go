// The main package for the staticpub executable.
package main

import (
	"github.com/JakeFAU/staticpub/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
