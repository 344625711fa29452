// Package main is the single-binary entrypoint for Routine Minder.
package main

import (
	_ "time/tzdata"

	"github.com/routine-minder/minder/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
