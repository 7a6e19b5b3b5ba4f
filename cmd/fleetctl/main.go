package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/xela07ax/spaceai-fleet/internal/fleetctl"
)

func main() {
	f, err := fleetctl.NewFactory(os.Getenv("FLEETCTL_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := fleetctl.NewCmdRoot(f).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
