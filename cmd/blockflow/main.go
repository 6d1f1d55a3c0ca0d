// Command blockflow edits block-based workflow definitions: it converts them
// to laid-out graphs and back, upgrades and validates them, draws diagrams
// and serves the editor over MCP and HTTP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
