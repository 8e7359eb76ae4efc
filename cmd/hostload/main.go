// Package main provides the entry point for the hostload CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/hostload/cmd/hostload/commands"
	"github.com/Sumatoshi-tech/hostload/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
