// Package cli implements the chunky command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chunky/internal/logging"
	"chunky/internal/sysmetrics"
	"chunky/internal/table/file"
)

// EnvDBPassword supplies the export database password when --password is
// not given.
const EnvDBPassword = "CHUNKY_DB_PASSWORD"

// app holds state shared by all subcommands for one invocation.
type app struct {
	version string
	logger  *slog.Logger
	logOut  io.Closer
	meter   *sysmetrics.Meter
}

// Execute runs the command line in args and returns the process exit code.
// Errors are logged and printed to stderr.
func Execute(ctx context.Context, version string, args []string, stdout, stderr io.Writer) int {
	a := &app{version: version, logger: logging.Discard()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		a.logger.Error("command failed", "error", err)
		_, _ = fmt.Fprintf(stderr, "chunky: %v\n", err)
	}
	if a.meter != nil {
		u := a.meter.Sample()
		a.logger.Info("resource usage",
			"elapsed", u.Elapsed.Round(time.Millisecond),
			"cpu_percent", int(u.CPUPercent()),
			"memory_inuse", u.MemoryInuse,
			"peak_rss", u.PeakRSS)
	}
	if a.logOut != nil {
		_ = a.logOut.Close()
	}
	if err != nil {
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chunky",
		Short:         "Generate, index, and load large time-ordered datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogging(cmd, args)
		},
	}

	cmd.PersistentFlags().String("logfile", "chunky.log", "log file (- for stderr)")
	cmd.PersistentFlags().Bool("debug", false, "log at debug level")
	cmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	cmd.PersistentFlags().StringP("output", "o", "table", "output format: table or json")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Overrides the root hook so that printing the version never
		// creates a log file.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), a.version)
		},
	}

	cmd.AddCommand(
		newIndexCmd(a),
		newGenerateCmd(a),
		newExportCmd(a),
		newLsCmd(a),
		newSelectCmd(a),
		versionCmd,
	)
	return cmd
}

func (a *app) setupLogging(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("logfile")
	debug, _ := cmd.Flags().GetBool("debug")
	format, _ := cmd.Flags().GetString("log-format")

	out, err := logging.OpenOutput(path)
	if err != nil {
		return err
	}
	h, err := logging.NewHandler(out, format, logging.Level(debug))
	if err != nil {
		_ = out.Close()
		return err
	}
	a.logOut = out
	a.logger = slog.New(h)
	a.meter = sysmetrics.Start()
	a.logger.Debug("invoked", "command", cmd.CommandPath(), "args", args)
	return nil
}

// outputFormat returns "json" or "table" from the --output flag.
func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}

// compressionFlag registers --compression on cmd.
func compressionFlag(cmd *cobra.Command) {
	cmd.Flags().String("compression", "zstd", "segment compression: none or zstd")
}

func compression(cmd *cobra.Command) (file.CompressionType, error) {
	s, _ := cmd.Flags().GetString("compression")
	return file.ParseCompression(s)
}

// Accepted layouts for --start, --stop, and --day.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime parses s in loc using the first matching layout.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want YYYY-MM-DD, YYYY-MM-DD HH:MM:SS, or RFC 3339)", s)
}

// envPassword reads the database password from the environment.
func envPassword() string {
	return os.Getenv(EnvDBPassword)
}
