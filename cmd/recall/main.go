package main

import (
	"os"

	"github.com/becomeliminal/recall/cli"
)

func main() {
	os.Exit(cli.Execute())
}
