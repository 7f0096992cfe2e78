package main

import (
	"os"

	skycastcmder "github.com/papercomputeco/skycast/cmd/skycast"
)

func main() {
	cmd := skycastcmder.NewSkycastCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
