package main

import (
	"os"

	"github.com/etcbridge/etcbridge/client/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
