// Package main is the entry point for the hue CLI binary.
package main

import (
	"os"

	"hue-gateway/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
