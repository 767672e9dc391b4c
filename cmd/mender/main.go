// Command mender is the operator CLI: it lists projects and issues, runs
// analyses and auto-fixes, and prints health against the server's database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorPrefix, err)
		os.Exit(1)
	}
}
