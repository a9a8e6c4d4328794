// Package main is the single-binary entrypoint for cityledger.
package main

import "github.com/tutu-network/cityledger/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
