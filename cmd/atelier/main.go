package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Interrupts surface as context.Canceled; the signal is message
		// enough on its own.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "atelier: %v\n", err)
		}
		os.Exit(1)
	}
}
