package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chunky/internal/index"
	"chunky/internal/table"
	"chunky/internal/table/file"
)

var errDayNotIndexed = errors.New("day not in index")

func newSelectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <store> <dataset>",
		Short: "Print a row range of a dataset",
		Long: "Prints rows [--start, --stop) of dataset, or with --index and --day the rows of one " +
			"calendar day as recorded by a day index built with \"chunky index\".",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, dataset := args[0], args[1]
			start, _ := cmd.Flags().GetInt64("start")
			stop, _ := cmd.Flags().GetInt64("stop")
			indexName, _ := cmd.Flags().GetString("index")
			day, _ := cmd.Flags().GetString("day")
			columns, _ := cmd.Flags().GetStringSlice("columns")

			if (indexName == "") != (day == "") {
				return errors.New("--index and --day must be given together")
			}
			p, err := newPrinter(outputFormat(cmd), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			var f table.Frame
			err = file.WithStore(file.Config{Dir: dir, ReadOnly: true, Logger: a.logger}, func(s *file.Store) error {
				meta, err := s.Meta(dataset)
				if err != nil {
					return err
				}
				if indexName != "" {
					start, stop, err = dayRange(s, meta, indexName, day)
					if err != nil {
						return err
					}
				} else if stop < 0 {
					stop = meta.Rows
				}
				a.logger.Debug("select", "dataset", meta.Name, "start", start, "stop", stop, "columns", columns)
				f, err = s.Select(meta.Name, start, stop, columns...)
				return err
			})
			if err != nil {
				return err
			}

			if p.isJSON() {
				out := make([]map[string]any, f.Len())
				for i := range out {
					row := make(map[string]any, len(f.Columns))
					for k, v := range f.Row(i) {
						row[f.Columns[k].Name] = v
					}
					out[i] = row
				}
				return p.json(out)
			}
			header := make([]string, len(f.Columns))
			for i, c := range f.Columns {
				header[i] = strings.ToUpper(c.Name)
			}
			rows := make([][]string, f.Len())
			for i := range rows {
				vals := f.Row(i)
				row := make([]string, len(vals))
				for k, v := range vals {
					row[k] = formatValue(v)
				}
				rows[i] = row
			}
			p.table(header, rows)
			return nil
		},
	}

	cmd.Flags().Int64("start", 0, "first row")
	cmd.Flags().Int64("stop", -1, "row after the last (default: end of dataset)")
	cmd.Flags().String("index", "", "day index to resolve --day with")
	cmd.Flags().String("day", "", "calendar day to print (YYYY-MM-DD)")
	cmd.Flags().StringSlice("columns", nil, "columns to print (default: all)")
	return cmd
}

// dayRange resolves day to a row range of source through the named index.
func dayRange(s *file.Store, source table.DatasetMeta, indexName, day string) (start, stop int64, err error) {
	idx, err := index.Load(s, indexName)
	if err != nil {
		return 0, 0, err
	}
	if idx.Source != source.Name {
		return 0, 0, fmt.Errorf("%w: index %q was built for %q, not %q", index.ErrStaleIndex, idx.Name, idx.Source, source.Name)
	}
	if err := idx.Check(source); err != nil {
		return 0, 0, err
	}
	t, err := parseTime(day, idx.Location)
	if err != nil {
		return 0, 0, err
	}
	start, stop, ok := idx.Lookup(t)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", errDayNotIndexed, day)
	}
	return start, stop, nil
}
