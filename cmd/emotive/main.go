// Command emotive serves real-time reaction suggestions for a live
// transcript, and offers offline tools to inspect matching and manage the
// stored mappings and preference profile.
package main

import (
	"os"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
