package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shibukawa/sqlpatch"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// ExecCmd represents the exec command
type ExecCmd struct {
	SQLFile string   `arg:"" help:"SQL file to patch and execute" type:"existingfile"`
	Select  []string `help:"Selector expression, paired with --fixture by position" short:"s"`
	Fixture []string `help:"Row-set fixture YAML, paired with --select by position" short:"f"`

	Environment string `help:"Database environment to use from config" default:"development"`
	Timeout     string `help:"Query timeout duration" default:"1m"`

	SafeMode       *bool `help:"Search the comment- and string-blanked SQL"`
	ReplaceAliases *bool `help:"Rewrite qualified references to renamed patch aliases"`
}

// Run executes the exec command
func (cmd *ExecCmd) Run(ctx *Context) error {
	config, err := sqlpatch.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer config.Apply()()

	dbConfig, ok := config.Databases[cmd.Environment]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoDatabase, cmd.Environment)
	}

	timeout, err := time.ParseDuration(cmd.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout duration: %w", err)
	}

	patchCmd := &PatchCmd{Select: cmd.Select, Fixture: cmd.Fixture}
	patches, err := patchCmd.buildPatches()
	if err != nil {
		return err
	}

	contents, err := os.ReadFile(cmd.SQLFile)
	if err != nil {
		return fmt.Errorf("failed to read SQL file: %w", err)
	}

	opts := sqlpatch.Options{SafeMode: cmd.SafeMode, ReplaceNewPatchAliases: cmd.ReplaceAliases}
	patched, err := sqlpatch.ApplyWith(string(contents), opts, patches...)
	if err != nil {
		return err
	}

	driverName := normalizeSQLDriverName(dbConfig.Driver)
	db, err := sql.Open(driverName, dbConfig.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	execCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(execCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if ctx.Verbose {
		color.Blue("Connected to database: %s", driverName)
		color.Blue("Executing patched SQL from %s", cmd.SQLFile)
	}

	if returnsRows(patched) {
		return cmd.query(execCtx, db, patched)
	}

	result, err := db.ExecContext(execCtx, patched)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	if !ctx.Quiet {
		if affected, err := result.RowsAffected(); err == nil {
			color.Green("OK, %d row(s) affected", affected)
		} else {
			color.Green("OK")
		}
	}
	return nil
}

var rowsPattern = regexp.MustCompile(`(?i)^\s*(select|with|values|show|explain)\b`)

func returnsRows(query string) bool {
	return rowsPattern.MatchString(query)
}

func (cmd *ExecCmd) query(ctx context.Context, db *sql.DB, patched string) error {
	rows, err := db.QueryContext(ctx, patched)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read result columns: %w", err)
	}
	color.Cyan("%s", strings.Join(cols, "\t"))

	values := make([]any, len(cols))
	scans := make([]any, len(cols))
	for i := range values {
		scans[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(scans...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatCell(v)
		}
		fmt.Println(strings.Join(cells, "\t"))
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration failed: %w", err)
	}
	color.Green("%d row(s)", count)
	return nil
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
