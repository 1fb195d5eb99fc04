package main // Entry point package

import (
	"os"

	"github.com/iliyamo/paycore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
