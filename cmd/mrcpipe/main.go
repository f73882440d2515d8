package main

import (
	"os"

	"github.com/Guhaifudeng/les-military-mrc-rank7/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
