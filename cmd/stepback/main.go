package main

import (
	"os"

	"github.com/stepbackfx/stepback/cmd/stepback/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
