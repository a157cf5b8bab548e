// Command api serves the trade escrow HTTP API and runs its background workers.
package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/trade-escrow/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "trade-escrow: %v\n", err)
		os.Exit(1)
	}
}
