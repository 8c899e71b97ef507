package main

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
		wantErr  error
	}{
		{
			name:     "statement",
			expr:     "statement:0",
			expected: "sqlpatch.Statement(0)",
		},
		{
			name:     "statement range",
			expr:     "statements:0-2",
			expected: "sqlpatch.StatementRange(0, 2)",
		},
		{
			name:     "chained",
			expr:     "statement:0/subquery:bb/body",
			expected: `sqlpatch.Statement(0).Subquery("bb").Body()`,
		},
		{
			name:     "cte",
			expr:     "cte:daily_total",
			expected: `sqlpatch.CTE("daily_total")`,
		},
		{
			name:     "insert",
			expr:     "insert:app.users",
			expected: `sqlpatch.InsertInto("app.users")`,
		},
		{
			name:     "create table as",
			expr:     "ctas:report",
			expected: `sqlpatch.CreateTableAs("report")`,
		},
		{
			name:     "table",
			expr:     "table:app.users",
			expected: `sqlpatch.Table("app.users")`,
		},
		{
			name:     "table with alias",
			expr:     "table:app.users:u",
			expected: `sqlpatch.TableAs("app.users", "u")`,
		},
		{
			name:     "at and slice",
			expr:     "table:t1/at:1",
			expected: `sqlpatch.Table("t1").At(1)`,
		},
		{
			name:     "slice",
			expr:     "table:t1/slice:0-2",
			expected: `sqlpatch.Table("t1").Slice(0, 2)`,
		},
		{name: "empty", expr: "", wantErr: ErrEmptySelector},
		{name: "unknown kind", expr: "bogus:x", wantErr: ErrUnknownSelectorKind},
		{name: "missing argument", expr: "subquery", wantErr: ErrSelectorArgs},
		{name: "non numeric index", expr: "statement:x", wantErr: ErrSelectorArgs},
		{name: "bad range", expr: "statements:02", wantErr: ErrSelectorArgs},
		{name: "body with argument", expr: "body:x", wantErr: ErrSelectorArgs},
		{name: "too many table arguments", expr: "table:a:b:c", wantErr: ErrSelectorArgs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := parseSelector(tt.expr)
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, sel.String())
		})
	}
}

func TestNormalizeSQLDriverName(t *testing.T) {
	assert.Equal(t, "pgx", normalizeSQLDriverName("PostgreSQL"))
	assert.Equal(t, "pgx", normalizeSQLDriverName("postgres"))
	assert.Equal(t, "mysql", normalizeSQLDriverName("mariadb"))
	assert.Equal(t, "sqlite3", normalizeSQLDriverName(" sqlite "))
	assert.Equal(t, "odbc", normalizeSQLDriverName("ODBC"))
}
