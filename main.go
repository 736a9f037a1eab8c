package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"dex-trader/cmd"
)

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
