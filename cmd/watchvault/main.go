// Command watchvault keeps a local archive of video watch history.
package main

import (
	"os"

	"github.com/runnerr0/watchvault/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// go-flags already printed the error.
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
