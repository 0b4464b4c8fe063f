package main

import (
	"os"

	"github.com/minefleet/minefleet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
