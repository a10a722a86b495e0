// Command mbsiq is the entry point for the MBS-IQ mortgage analytics
// assistant. It answers natural-language questions about mortgage-backed
// securities by combining business-rule retrieval with deterministic
// portfolio analytics, as a CLI and an optional HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/quantdesk/mbsiq/cmd/mbsiq/commands"
)

func main() {
	// Optional .env file for local development; real env vars always win.
	_ = godotenv.Load()

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
