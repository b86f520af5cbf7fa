package main

import (
	"os"

	ferrycmder "github.com/harborworks/ferry/cmd/ferry"
)

func main() {
	cmd := ferrycmder.NewFerryCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
