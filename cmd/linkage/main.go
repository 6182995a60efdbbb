// Command linkage validates and migrates resource schemas, runs
// reconciliation scenarios and pages stored resources.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/linkage/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkage: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
