// Package main is the entry point for the broker admin control plane.
package main

import (
	"fmt"
	"os"

	"brokeradmin/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
