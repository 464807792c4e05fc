package main

import (
	"os"
)

var (
	Version = "v0.1.0" // default version
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
