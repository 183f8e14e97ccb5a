package main

import (
	"os"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/cli"
)

func main() {
	cli.PrintBanner(os.Stdout)
	cli.Run()
}
