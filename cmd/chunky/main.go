// Command chunky generates, indexes, and loads large time-ordered datasets
// in a columnar table store.
//
// Logging:
//   - Base logger is created by the root command from --logfile, --debug,
//     and --log-format
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
package main

import (
	"context"
	"os"
	"os/signal"

	"chunky/cmd/chunky/cli"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, version, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
