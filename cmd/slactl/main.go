package main

import (
	"fmt"
	"os"

	"github.com/spec-kit/servicedesk-realtime/internal/cli"
)

func main() {
	app := cli.New()
	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
