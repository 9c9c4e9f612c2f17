package main

import (
	"fmt"
	"os"

	"github.com/pursuelabs/segmentd/internal/cmd"
)

// Build metadata injected via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "segmentd: %v\n", err)
		os.Exit(1)
	}
}
