package main

import (
	"os"

	"radiance-network/cmd/cli"
)

func main() {
	os.Exit(cli.Execute())
}
