package main

import (
	"os"

	"github.com/dcmarble/stonesite/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
