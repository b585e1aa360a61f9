// Command pledge creates commitments, records confirmations, and enforces
// stake penalties against a SQLite journal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pledgeworks/pledge/internal/cli"
	"github.com/pledgeworks/pledge/internal/config"
	"github.com/pledgeworks/pledge/internal/logger"
)

func main() {
	// Default logger until the root command has loaded configuration.
	logger.Setup(config.DefaultLogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd := cli.NewRootCommand()
	cmd.SetContext(ctx)

	code := cli.Execute(cmd)
	stop()
	os.Exit(code)
}
