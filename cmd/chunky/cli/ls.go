package cli

import (
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"chunky/internal/table"
	"chunky/internal/table/file"
)

type datasetRow struct {
	Name     string            `json:"name"`
	ID       string            `json:"id"`
	Rows     int64             `json:"rows"`
	Segments int               `json:"segments"`
	Schema   string            `json:"schema"`
	Created  time.Time         `json:"created"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <store> [pattern]",
		Short: "List datasets, optionally filtered by a glob pattern",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 2 {
				pattern = args[1]
			}
			if !doublestar.ValidatePattern(pattern) {
				return doublestar.ErrBadPattern
			}
			p, err := newPrinter(outputFormat(cmd), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			var metas []table.DatasetMeta
			err = file.WithStore(file.Config{Dir: args[0], ReadOnly: true, Logger: a.logger}, func(s *file.Store) error {
				all, err := s.Datasets()
				if err != nil {
					return err
				}
				for _, m := range all {
					if ok, _ := doublestar.Match(pattern, m.Name); ok {
						metas = append(metas, m)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			if p.isJSON() {
				out := make([]datasetRow, len(metas))
				for i, m := range metas {
					out[i] = datasetRow{
						Name:     m.Name,
						ID:       m.ID.String(),
						Rows:     m.Rows,
						Segments: m.Segments,
						Schema:   m.Schema.String(),
						Created:  m.Created,
						Attrs:    m.Attrs,
					}
				}
				return p.json(out)
			}
			rows := make([][]string, len(metas))
			for i, m := range metas {
				rows[i] = []string{
					m.Name,
					strconv.FormatInt(m.Rows, 10),
					strconv.Itoa(m.Segments),
					m.Schema.String(),
					m.Created.Format(time.DateTime),
				}
			}
			p.table([]string{"NAME", "ROWS", "SEGMENTS", "SCHEMA", "CREATED"}, rows)
			return nil
		},
	}
}
