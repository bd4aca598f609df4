// framectl operates a shopframes deployment from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/ashureev/shopframes/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
