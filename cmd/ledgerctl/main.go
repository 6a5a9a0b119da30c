package main

import (
	"context"
	"os"

	"github.com/pterm/pterm"

	"ledger/internal/cli"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()

	if err := cli.NewApp(version, os.Stdout).Execute(context.Background(), nil); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
