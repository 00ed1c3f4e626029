// Command yaskkserv is the SKK network dictionary server's CLI entrypoint:
// it parses flags with urfave/cli/v2, opens the configured dictionaries,
// and runs the connection pool's main loop until SIGTERM/SIGINT — the
// same context-cancel-on-signal shape as the teacher's own main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/yaskkserv/yaskkserv-go/internal/config"
	"github.com/yaskkserv/yaskkserv-go/internal/metrics"
	"github.com/yaskkserv/yaskkserv-go/internal/serverlog"
	"github.com/yaskkserv/yaskkserv-go/internal/skkserver"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-interrupt:
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	cfg := &config.Config{}

	app := &cli.App{
		Name:        "yaskkserv",
		Version:     gitCommitSHA,
		Usage:       "SKK network dictionary server",
		ArgsUsage:   "<dictionary-file> [dictionary-file ...]",
		Flags:       append(serverlog.Flags(), config.Flags(cfg)...),
		HideVersion: gitCommitSHA == "",
		Action: func(cctx *cli.Context) error {
			if err := cfg.Validate(cctx); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			srv, err := skkserver.Open(cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("starting server: %s", err.Error()), 1)
			}
			defer srv.Close()

			if cfg.MetricsListen != "" {
				go metrics.Serve(cfg.MetricsListen)
			}

			klog.Infof("yaskkserv: listening on %s:%d, %d dictionaries, max-connection=%d",
				cfg.Address, cfg.Port, len(cfg.DictionaryPaths), cfg.MaxConnection)

			if err := srv.Run(cctx.Context); err != nil {
				return cli.Exit(fmt.Sprintf("server loop exited: %s", err.Error()), 1)
			}
			return nil
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
	serverlog.Flush()
}
