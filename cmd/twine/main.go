// Spins up the twine server, serving lists and stacks over the Redis protocol.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nobletooth/twine/pkg/config"
	"github.com/nobletooth/twine/pkg/keyspace"
	"github.com/nobletooth/twine/pkg/port"
	"github.com/nobletooth/twine/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Twine build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ks, err := keyspace.New()
	if err != nil {
		slog.Error("Failed to build the keyspace.", "error", err)
		os.Exit(1)
	}
	if err := port.RunRedisServer(ctx, ks); err != nil {
		slog.Error("Twine server stopped.", "error", err, "uptime", utils.Uptime())
		os.Exit(1)
	}
	slog.Info("Twine server stopped.", "uptime", utils.Uptime())
}
