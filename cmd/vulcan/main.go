package main

import (
	"os"

	"github.com/vulcanci/vulcan-core/cmd/vulcan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
