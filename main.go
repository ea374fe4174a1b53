package main

import (
	"os"

	"github.com/gush-sh/gush/internal/shell/cli"
)

func main() {
	os.Exit(cli.Run())
}
