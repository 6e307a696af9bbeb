package main

import (
	"os"

	"github.com/kilianp07/farmbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
