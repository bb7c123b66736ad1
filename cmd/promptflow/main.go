// Command promptflow renders recipe prompts for cards on a repository board,
// hands them to a coding agent and opens Bitbucket pull requests.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/madhatter5501/promptflow/internal/cli"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, Version, os.Args[1:])
	stop()
	os.Exit(code)
}
