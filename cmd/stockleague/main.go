package main

import (
	"os"

	"github.com/rustyeddy/stockleague/cmd/stockleague/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
