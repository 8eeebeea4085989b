// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eugene-lint/eugene/cmd/flags"
	"github.com/eugene-lint/eugene/pkg/db"
	"github.com/eugene-lint/eugene/pkg/scripts"
	"github.com/eugene-lint/eugene/pkg/trace"
)

func traceCmd() *cobra.Command {
	traceCmd := &cobra.Command{
		Use:       "trace <path to SQL script>",
		Short:     "Run a migration script against Postgres and observe its locks",
		Long: "Run a migration script inside a transaction against a live Postgres and report " +
			"locks taken, schema changes and table rewrites. The transaction is rolled back " +
			"unless --commit is given. Scripts consisting solely of statements that cannot run " +
			"in a transaction, such as CREATE INDEX CONCURRENTLY, run on a raw connection instead.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"script"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			name, sqlText, err := readScript(args)
			if err != nil {
				return err
			}
			sqlText, err = resolvePlaceholders(sqlText)
			if err != nil {
				return err
			}
			statements, err := scripts.Split(sqlText)
			if err != nil {
				return err
			}

			sp, _ := pterm.DefaultSpinner.WithText("Tracing migration...").Start()
			tr, err := runTrace(ctx, name, statements)
			if err != nil {
				sp.Fail(err.Error())
				return err
			}
			if tr.Success() {
				sp.Success("Trace complete")
			} else {
				sp.Warning("Trace matched checks")
			}

			return emitReport(cmd.OutOrStdout(), tr.Report())
		},
	}

	traceCmd.Flags().Bool("commit", false, "Commit the migration instead of rolling it back")
	traceCmd.Flags().Bool("temp-database", false, "Trace in a scratch database that is dropped afterwards")
	viper.BindPFlag("COMMIT", traceCmd.Flags().Lookup("commit"))
	viper.BindPFlag("TEMP_DATABASE", traceCmd.Flags().Lookup("temp-database"))

	return traceCmd
}

func runTrace(ctx context.Context, name string, statements []scripts.Statement) (*trace.TxTrace, error) {
	pgURL := flags.PostgresURL()

	if viper.GetBool("TEMP_DATABASE") {
		scratchURL, drop, err := createScratchDatabase(ctx, pgURL)
		if err != nil {
			return nil, err
		}
		defer drop()
		pgURL = scratchURL
	}

	conn, err := openConn(ctx, pgURL)
	if err != nil {
		return nil, err
	}
	rdb := &db.RDB{DB: conn}
	defer rdb.Close()

	if allConcurrently(statements) {
		return trace.Concurrent(ctx, rdb.DB, name, statements, flags.IgnoredHints())
	}

	var tr *trace.TxTrace
	err = rdb.WithTransaction(ctx, viper.GetBool("COMMIT"), func(ctx context.Context, tx *sql.Tx) error {
		tr, err = trace.Transaction(ctx, tx, name, statements, flags.IgnoredHints())
		return err
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// allConcurrently reports whether every statement must run outside a
// transaction.
func allConcurrently(statements []scripts.Statement) bool {
	if len(statements) == 0 {
		return false
	}
	for _, s := range statements {
		if !scripts.IsConcurrently(s.SQL) {
			return false
		}
	}
	return true
}

func openConn(ctx context.Context, pgURL string) (*sql.DB, error) {
	dsn, err := pq.ParseURL(pgURL)
	if err != nil {
		dsn = pgURL
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// createScratchDatabase creates an empty database on the target server and
// returns a URL pointing at it plus a function that drops it again.
func createScratchDatabase(ctx context.Context, pgURL string) (string, func(), error) {
	conn, err := openConn(ctx, pgURL)
	if err != nil {
		return "", nil, err
	}

	dbName := "eugene_scratch_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := conn.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName)); err != nil {
		conn.Close()
		return "", nil, fmt.Errorf("creating scratch database: %w", err)
	}

	drop := func() {
		if _, err := conn.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(dbName)); err != nil {
			pterm.Warning.Printfln("Failed to drop scratch database %s: %v", dbName, err)
		}
		conn.Close()
	}

	scratchURL, err := replaceDatabase(pgURL, dbName)
	if err != nil {
		drop()
		return "", nil, err
	}
	return scratchURL, drop, nil
}

func replaceDatabase(pgURL, dbName string) (string, error) {
	if strings.HasPrefix(pgURL, "postgres://") || strings.HasPrefix(pgURL, "postgresql://") {
		u, err := url.Parse(pgURL)
		if err != nil {
			return "", err
		}
		u.Path = "/" + dbName
		return u.String(), nil
	}
	// key=value DSN form
	if strings.Contains(pgURL, "dbname=") {
		fields := strings.Fields(pgURL)
		for i, f := range fields {
			if strings.HasPrefix(f, "dbname=") {
				fields[i] = "dbname=" + dbName
			}
		}
		return strings.Join(fields, " "), nil
	}
	return strings.TrimSpace(pgURL) + " dbname=" + dbName, nil
}
