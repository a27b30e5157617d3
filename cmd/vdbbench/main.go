// Package main provides the entry point for the vdbbench CLI.
package main

import (
	"os"

	"github.com/Jangseon-park/vector-db-benchmark/cmd/vdbbench/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
