// Command gosession signs in to the settlement back office and keeps the
// session between invocations.
package main

import (
	"fmt"
	"os"

	"github.com/moneysab/goSession/internal/cli"
)

func main() {
	if err := cli.App(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
