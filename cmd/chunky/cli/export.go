package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"chunky/internal/export"
	"chunky/internal/table/file"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a SQL table into a dataset chunk by chunk",
		Long: "Reads --table ordered by --order-by in pages of --chunksize rows and appends each page " +
			"to a dataset in --repository. The password may be given in " + EnvDBPassword + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, _ := cmd.Flags().GetString("driver")
			dsn, _ := cmd.Flags().GetString("dsn")
			host, _ := cmd.Flags().GetString("hostname")
			user, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			dbname, _ := cmd.Flags().GetString("dbname")
			tbl, _ := cmd.Flags().GetString("table")
			orderBy, _ := cmd.Flags().GetString("order-by")
			chunk, _ := cmd.Flags().GetInt("chunksize")
			repo, _ := cmd.Flags().GetString("repository")
			dataset, _ := cmd.Flags().GetString("dataset")
			appendRows, _ := cmd.Flags().GetBool("append")

			p, err := newPrinter(outputFormat(cmd), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			comp, err := compression(cmd)
			if err != nil {
				return err
			}
			if password == "" {
				password = envPassword()
			}

			conn := export.Connection{
				Driver:   driver,
				DSN:      dsn,
				Host:     host,
				User:     user,
				Password: password,
				Database: dbname,
			}
			logger := a.logger.With("store", repo)
			logger.Debug("connecting", "driver", driver, "dsn", conn.Redacted())
			db, err := export.Open(cmd.Context(), conn)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			var stats export.Stats
			err = file.WithStore(file.Config{Dir: repo, Create: true, Compression: comp, Logger: logger}, func(s *file.Store) error {
				stats, err = export.Run(cmd.Context(), db, s, export.Config{
					Driver:    driver,
					Table:     tbl,
					OrderBy:   orderBy,
					ChunkSize: chunk,
					Dataset:   dataset,
					Append:    appendRows,
					Logger:    logger,
				})
				return err
			})
			if err != nil {
				return err
			}

			if dataset == "" {
				dataset = tbl
			}
			if p.isJSON() {
				return p.json(map[string]any{
					"table":   tbl,
					"dataset": dataset,
					"rows":    stats.Rows,
					"chunks":  stats.Chunks,
					"schema":  stats.Schema.String(),
				})
			}
			p.kv([][2]string{
				{"Table", tbl},
				{"Dataset", dataset},
				{"Rows", strconv.FormatInt(stats.Rows, 10)},
				{"Chunks", strconv.Itoa(stats.Chunks)},
				{"Schema", stats.Schema.String()},
			})
			return nil
		},
	}

	cmd.Flags().String("driver", export.DriverMySQL, "database driver: mysql or sqlite")
	cmd.Flags().String("dsn", "", "data source name (overrides the connection flags)")
	cmd.Flags().String("hostname", "localhost", "database host[:port]")
	cmd.Flags().String("username", "", "database user")
	cmd.Flags().String("password", "", "database password (or "+EnvDBPassword+" env)")
	cmd.Flags().String("dbname", "", "database name, or file path for sqlite")
	cmd.Flags().String("table", "", "source table")
	cmd.Flags().String("order-by", "setup", "column that orders the pages")
	cmd.Flags().Int("chunksize", export.DefaultChunkSize, "rows per page")
	cmd.Flags().String("repository", "test.d", "destination store directory")
	cmd.Flags().String("dataset", "", "destination dataset (default: table name)")
	cmd.Flags().Bool("append", false, "append to the dataset instead of replacing it")
	compressionFlag(cmd)
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
