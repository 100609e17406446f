package main

import (
	"github.com/turtacn/modelfarm/cmd/cli"
)

// main is the entry point for the modelfarm command-line tool.
func main() {
	cli.Execute()
}
