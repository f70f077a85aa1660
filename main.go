package main

import (
	"os"

	"github.com/adalundhe/starnest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
