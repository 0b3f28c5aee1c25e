// Command sheetrpc serves spreadsheet automation over JSON-RPC and talks to
// running servers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"pkt.systems/pslog"

	"github.com/mnehpets/sheetrpc/internal/svcfields"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	// A .env file in the working directory seeds the environment before the
	// logger and flags read it. Variables already set win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		return 1
	}
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("SHEETRPC_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "sheetrpc")

	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if c, err := cmd.ExecuteContextC(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 1
		}
		if c == cmd {
			svcfields.WithSubsystem(baseLogger, "cli.serve").Error("command failed", "error", err)
		} else if !errors.Is(err, errRPCFailed) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
