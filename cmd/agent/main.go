package main

import (
	"os"

	"github.com/rustyeddy/agent/cmd/agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
