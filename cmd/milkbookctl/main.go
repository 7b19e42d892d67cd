package main

import (
	"os"

	"milkbook/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := cli.NewRootCommand(nil).Execute(); err != nil {
		os.Exit(1)
	}
}
