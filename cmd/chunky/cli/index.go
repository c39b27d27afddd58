package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"chunky/internal/index"
	"chunky/internal/table/file"
)

type indexRow struct {
	Day    string `json:"day"`
	Offset int64  `json:"offset"`
}

type indexResult struct {
	Dataset string     `json:"dataset"`
	Key     string     `json:"key"`
	Index   string     `json:"index,omitempty"`
	Days    []indexRow `json:"days"`
}

func newIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <store> <dataset> <key>",
		Short: "Build the per-day offset index of a sorted dataset",
		Long: "Scans dataset in windows of --chunksize rows and records the row offset at which " +
			"each calendar day begins. The dataset must be sorted ascending by key. " +
			"The index is saved as a dataset in the same store unless --dry-run is given.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, dataset, key := args[0], args[1], args[2]
			chunk, _ := cmd.Flags().GetInt64("chunksize")
			name, _ := cmd.Flags().GetString("index")
			tz, _ := cmd.Flags().GetString("tz")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			p, err := newPrinter(outputFormat(cmd), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return err
			}
			if name == "" {
				name = index.DefaultName(dataset)
			}
			logger := a.logger.With("store", dir)

			var entries []index.Entry
			err = file.WithStore(file.Config{Dir: dir, ReadOnly: dryRun, Logger: logger}, func(s *file.Store) error {
				entries, err = index.Build(cmd.Context(), s, dataset, index.Config{
					Key:        key,
					WindowSize: chunk,
					Location:   loc,
					Observer:   index.LogObserver(logger),
					Logger:     logger,
				})
				if err != nil {
					return err
				}
				for _, e := range entries {
					logger.Info("day", "day", e.Day.Format(time.DateOnly), "offset", e.Offset)
				}
				if dryRun {
					return nil
				}
				meta, err := s.Meta(dataset)
				if err != nil {
					return err
				}
				if err := index.Save(s, name, meta, key, loc, entries); err != nil {
					return err
				}
				logger.Info("saved index", "index", name, "days", len(entries))
				return nil
			})
			if err != nil {
				return err
			}

			res := indexResult{Dataset: dataset, Key: key, Days: make([]indexRow, len(entries))}
			if !dryRun {
				res.Index = name
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				res.Days[i] = indexRow{Day: e.Day.Format(time.DateOnly), Offset: e.Offset}
				rows[i] = []string{res.Days[i].Day, strconv.FormatInt(e.Offset, 10)}
			}
			if p.isJSON() {
				return p.json(res)
			}
			p.table([]string{"DAY", "OFFSET"}, rows)
			return nil
		},
	}

	cmd.Flags().Int64("chunksize", index.DefaultWindowSize, "rows read per window")
	cmd.Flags().String("index", "", "name of the index dataset (default <dataset>_index)")
	cmd.Flags().String("tz", "UTC", "time zone defining calendar days")
	cmd.Flags().Bool("dry-run", false, "build and print the index without saving it")
	return cmd
}
