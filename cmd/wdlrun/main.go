package main

import (
	"os"

	"github.com/me/wdlrun/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
