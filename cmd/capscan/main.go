package main

import (
	"os"

	"github.com/probelab/capscan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
