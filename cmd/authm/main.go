// authm is the operator CLI of the auth service. It works directly on the
// service database.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const appName = "authm"

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
