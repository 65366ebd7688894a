// Command redislite runs a single-node, in-memory RESP key-value server
// with master/replica replication over PSYNC.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"redislite/internal/logging"
	"redislite/internal/server"
)

func main() {
	cfg, debug, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "redislite:", err)
		os.Exit(1)
	}

	log := logging.New(debug)
	defer log.Sync() //nolint:errcheck

	srv := server.New(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalw("server exited with error", "error", err)
	}
}

// parseFlags builds a server.StartupConfig from the process argv. Unknown
// flags or malformed values are reported with a one-line error, and main
// exits non-zero.
func parseFlags(argv []string) (server.StartupConfig, bool, error) {
	fs := pflag.NewFlagSet("redislite", pflag.ContinueOnError)
	cfg := server.DefaultStartupConfig()

	port := fs.Uint16("port", uint16(cfg.Port), "listening port")
	host := fs.String("host", cfg.Host, "listening host")
	replicaOf := fs.String("replicaof", "", `upstream master as "<host> <port>"; configures this server as a replica`)
	debug := fs.Bool("debug", false, "enable debug-level logging")

	if err := fs.Parse(argv); err != nil {
		return server.StartupConfig{}, false, err
	}

	cfg.Port = int(*port)
	cfg.Host = *host
	if *replicaOf != "" {
		ro, err := server.ParseReplicaOf(*replicaOf)
		if err != nil {
			return server.StartupConfig{}, false, err
		}
		cfg.ReplicaOf = ro
	}

	return cfg, *debug, nil
}
