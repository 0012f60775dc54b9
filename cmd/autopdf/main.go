// autopdf - command line companion to the AutoPDF server
package main

import (
	"os"

	"github.com/ashureev/autopdf/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
