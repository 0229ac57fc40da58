// Package main provides the courtstream binary entry point.
// Courtstream ingests decisions from the public court registry into a
// canonical versioned store, with pipeline stages connected over NATS
// JetStream.
package main

import (
	"fmt"
	"os"
	"runtime"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
