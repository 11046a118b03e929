package main

import (
	"os"

	"github.com/3leaps/taglaunch/internal/cmd"
)

// Set via -ldflags at release time.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
