package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chunky/internal/generate"
	"chunky/internal/table/file"
	"chunky/internal/table/memory"
)

func newGenerateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <store> <dataset>",
		Short: "Fill a dataset with synthetic time-ordered records",
		Long: "Replaces dataset with records whose setup column advances by a random delta " +
			"between --mindelta and --maxdelta, starting after --start and ending no later than --stop.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, dataset := args[0], args[1]
			startFlag, _ := cmd.Flags().GetString("start")
			stopFlag, _ := cmd.Flags().GetString("stop")
			chunk, _ := cmd.Flags().GetInt("chunksize")
			maxRecords, _ := cmd.Flags().GetInt64("maxrecords")
			minDelta, _ := cmd.Flags().GetDuration("mindelta")
			maxDelta, _ := cmd.Flags().GetDuration("maxdelta")
			seed, _ := cmd.Flags().GetUint64("seed")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			p, err := newPrinter(outputFormat(cmd), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			comp, err := compression(cmd)
			if err != nil {
				return err
			}
			start, err := parseTime(startFlag, time.UTC)
			if err != nil {
				return err
			}
			stop, err := parseTime(stopFlag, time.UTC)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixNano())
			}
			logger := a.logger.With("store", dir)

			cfg := generate.Config{
				Dataset:    dataset,
				Start:      start,
				Stop:       stop,
				ChunkSize:  chunk,
				MaxRecords: maxRecords,
				MinDelta:   minDelta,
				MaxDelta:   maxDelta,
				Seed:       seed,
				Logger:     logger,
			}
			var stats generate.Stats
			if dryRun {
				stats, err = generate.Run(cmd.Context(), memory.NewStore(memory.Config{Logger: logger}), cfg)
			} else {
				err = file.WithStore(file.Config{Dir: dir, Create: true, Compression: comp, Logger: logger}, func(s *file.Store) error {
					stats, err = generate.Run(cmd.Context(), s, cfg)
					return err
				})
			}
			if err != nil {
				return err
			}

			if p.isJSON() {
				return p.json(map[string]any{
					"dataset": dataset,
					"rows":    stats.Rows,
					"chunks":  stats.Chunks,
					"first":   stats.First,
					"last":    stats.Last,
					"seed":    seed,
				})
			}
			p.kv([][2]string{
				{"Dataset", dataset},
				{"Rows", strconv.FormatInt(stats.Rows, 10)},
				{"Chunks", strconv.Itoa(stats.Chunks)},
				{"First", formatValue(stats.First)},
				{"Last", formatValue(stats.Last)},
				{"Seed", strconv.FormatUint(seed, 10)},
			})
			return nil
		},
	}

	cmd.Flags().String("start", "2016-01-01", "base timestamp")
	cmd.Flags().String("stop", "2017-01-01", "latest timestamp")
	cmd.Flags().Int("chunksize", generate.DefaultChunkSize, "rows per appended chunk")
	cmd.Flags().Int64("maxrecords", generate.DefaultMaxRecords, "maximum number of rows")
	cmd.Flags().Duration("mindelta", generate.DefaultMinDelta, "minimum step between records")
	cmd.Flags().Duration("maxdelta", generate.DefaultMaxDelta, "maximum step between records (exclusive)")
	cmd.Flags().Uint64("seed", 0, "random seed (default: time based)")
	cmd.Flags().Bool("dry-run", false, "generate into memory and report without writing")
	compressionFlag(cmd)
	return cmd
}
