// Package main provides the entry point for the vaultrag CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/vaultrag/cmd/vaultrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
