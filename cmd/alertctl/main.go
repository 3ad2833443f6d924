// Command alertctl fires test alerts and manages dead letters through the
// opsalert HTTP API.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for a rejected alert (HTTP 422) and 1 for everything else.
func exitCode(err error) int {
	var se *statusError
	if errors.As(err, &se) && se.Code == 422 {
		return 2
	}
	return 1
}
