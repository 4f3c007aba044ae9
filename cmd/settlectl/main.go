// settlectl is the operator tool for settlement records: it lists and retries
// stuck seller transfers and mints development tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "settlectl",
		Short:         "Inspect and reconcile marketplace settlements",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(outstandingCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(showCmd())
	root.AddCommand(tokenCmd())
	return root
}
