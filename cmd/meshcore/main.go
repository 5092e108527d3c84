// Command meshcore is the client entrypoint: a cobra command tree with a
// "client" subcommand and flag/environment-driven configuration.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "meshcore: %v\n", err)
		os.Exit(1)
	}
}
