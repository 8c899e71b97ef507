package sqlpatch

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestStatementSelection(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		selector Selector
		expected string
		wantErr  error
	}{
		{
			name:     "first statement",
			query:    "select * from a; select * from b; select * from c",
			selector: Statement(0),
			expected: "select * from a",
		},
		{
			name:     "statement range",
			query:    "select * from a;select * from b; select * from c",
			selector: StatementRange(1, 3),
			expected: "select * from b; select * from c",
		},
		{
			name:     "range of first two",
			query:    "SELECT 1; SELECT 2; SELECT 3",
			selector: StatementRange(0, 2),
			expected: "SELECT 1; SELECT 2",
		},
		{
			name:     "semicolon inside parens does not split",
			query:    "select * from (values (1);) x; select 2",
			selector: Statement(1),
			expected: " select 2",
		},
		{
			name:     "range out of bounds",
			query:    "select * from a;select * from b; select * from c",
			selector: StatementRange(1, 4),
			wantErr:  ErrStatementRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Render(tt.query, tt.selector)
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestSubquerySelection(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		alias    string
		expected string
		wantErr  error
	}{
		{
			name:     "plain alias",
			query:    "select bb.c1, bb.c2 from (select * from test_table) bb;",
			alias:    "bb",
			expected: "select * from test_table",
		},
		{
			name:     "AS alias",
			query:    "select b.c1, b.c2 from (select * from test_table) AS b;",
			alias:    "b",
			expected: "select * from test_table",
		},
		{
			name:     "alias abutting paren",
			query:    "select c.c1 from (select * from (\nselect * from t)bb) c;",
			alias:    "bb",
			expected: "\nselect * from t",
		},
		{
			name:    "prefix of a longer alias does not match",
			query:   "select b.c1, b.c2 from (select * from test_table) bb;",
			alias:   "b",
			wantErr: ErrNoMatch,
		},
		{
			name:    "same alias nested",
			query:   "select * from (select * from (select * from test_table) bb) bb;",
			alias:   "bb",
			wantErr: ErrNestedMatch,
		},
		{
			name:    "two disjoint matches are ambiguous for render",
			query:   "select NOW() as c from t; select c.c1 from (select * from test_table) AS c;",
			alias:   "c",
			wantErr: ErrMultipleMatch,
		},
		{
			name:    "unbalanced parens",
			query:   "select * from \nselect * from t)bb) c;",
			alias:   "bb",
			wantErr: ErrInvalidSQL,
		},
		{
			name:    "empty alias unsupported",
			query:   "select * from (select 1) x",
			alias:   "",
			wantErr: ErrUnsupportedConstruct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Render(tt.query, Subquery(tt.alias))
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestCTESelection(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		alias    string
		expected string
		wantErr  error
	}{
		{
			name:     "single CTE",
			query:    "WITH bb AS (SELECT * FROM test_table)",
			alias:    "bb",
			expected: "SELECT * FROM test_table",
		},
		{
			name:     "second CTE after comma",
			query:    "WITH a AS (), b AS (SELECT b.c1, b.c2 from d);",
			alias:    "b",
			expected: "SELECT b.c1, b.c2 from d",
		},
		{
			name:     "nested WITH",
			query:    "WITH a AS (), b AS (WITH d AS (SELECT b.c1, b.c2 from d));",
			alias:    "d",
			expected: "SELECT b.c1, b.c2 from d",
		},
		{
			name:     "column list",
			query:    "WITH a(c1, c2) AS (select bb.c1, bb.c2 from x) SELECT * from a",
			alias:    "a",
			expected: "select bb.c1, bb.c2 from x",
		},
		{
			name:    "duplicate alias is ambiguous",
			query:   "WITH bb AS (SELECT * FROM a), bb AS (SELECT * FROM c)",
			alias:   "bb",
			wantErr: ErrMultipleMatch,
		},
		{
			name:    "no CTE",
			query:   "select b.c1 from (select * from test_table) bb;",
			alias:   "b",
			wantErr: ErrNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Render(tt.query, CTE(tt.alias))
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestInsertIntoSelection(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		table    string
		expected string
		wantErr  error
	}{
		{
			name:     "with trailing statement",
			query:    " insert into a select * from t; select * from b",
			table:    "a",
			expected: "insert into a select * from t",
		},
		{
			name:     "trailing space kept",
			query:    " insert into a select * from t ",
			table:    "a",
			expected: "insert into a select * from t ",
		},
		{
			name:     "line comment inside",
			query:    " insert into a\n\n --comment\n select * from t ",
			table:    "a",
			expected: "insert into a\n\n --comment\n select * from t ",
		},
		{
			name:     "column list",
			query:    " insert into a(my, cols) select * from t",
			table:    "a",
			expected: "insert into a(my, cols) select * from t",
		},
		{
			name:     "column list with space",
			query:    " insert into a (my, cols) select * from t",
			table:    "a",
			expected: "insert into a (my, cols) select * from t",
		},
		{
			name:    "no insert",
			query:   "select * from t",
			table:   "a",
			wantErr: ErrNoMatch,
		},
		{
			name:    "two inserts ambiguous for render",
			query:   "insert into a select * from t; insert into a select * from t",
			table:   "a",
			wantErr: ErrMultipleMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Render(tt.query, InsertInto(tt.table))
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestCreateTableAsSelection(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		table    string
		expected string
		wantErr  error
	}{
		{
			name:     "parenthesized body",
			query:    " create table a as ( select * from t ) ; select * from b",
			table:    "a",
			expected: "create table a as ( select * from t ) ",
		},
		{
			name:     "bare body",
			query:    " create table a as\n select * from t",
			table:    "a",
			expected: "create table a as\n select * from t",
		},
		{
			name:     "body abutting as",
			query:    " create table a as(select * from t)",
			table:    "a",
			expected: "create table a as(select * from t)",
		},
		{
			name:     "column definitions before as",
			query:    " create table a(has, columns)as(select * from t)",
			table:    "a",
			expected: "create table a(has, columns)as(select * from t)",
		},
		{
			name:    "no create table",
			query:   "select * from t",
			table:   "a",
			wantErr: ErrNoMatch,
		},
		{
			name:    "two creates ambiguous for render",
			query:   "create table a as (select * from t); create table a as (select * from t)",
			table:   "a",
			wantErr: ErrMultipleMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Render(tt.query, CreateTableAs(tt.table))
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestBodySelection(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		selector Selector
		expected string
		wantErr  error
	}{
		{
			name:     "insert body",
			query:    " insert into a select * from t; select * from b",
			selector: InsertInto("a").Body(),
			expected: "select * from t",
		},
		{
			name:     "insert body after column list",
			query:    " insert into a(my, cols) select * from t ",
			selector: InsertInto("a").Body(),
			expected: " select * from t ",
		},
		{
			name:     "create table as body",
			query:    " create table a as (select * from t)",
			selector: CreateTableAs("a").Body(),
			expected: " (select * from t)",
		},
		{
			name:     "statements have no body",
			query:    " insert into a values (1), (2);",
			selector: Statement(0).Body(),
			wantErr:  ErrUnpatchable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Render(tt.query, tt.selector)
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestChainedSelection(t *testing.T) {
	query := "select * from a; select * from b; select * from c"

	// One chained selector and separate selectors behave the same.
	chained, err := Render(query, Statement(0).Table("a"))
	assert.NoError(t, err)
	assert.Equal(t, "a", chained)

	separate, err := Render(query, Statement(0), Table("a"))
	assert.NoError(t, err)
	assert.Equal(t, "a", separate)
}

func TestChainedSelectionFlattens(t *testing.T) {
	// The table step runs inside each statement of the range and the results
	// are flattened, so the render sees two matches.
	query := "select * from t1; select * from t1"
	_, err := Render(query, StatementRange(0, 2).Table("t1"))
	assert.IsError(t, err, ErrMultipleMatch)

	matches, err := Matches(query, StatementRange(0, 2).Table("t1"))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(matches))
}

func TestAtAndSlice(t *testing.T) {
	query := "select * from t1 union all select * from t1"

	first, err := Matches(query, Table("t1").At(0))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(first))
	assert.Equal(t, "t1", first[0].Text)
	assert.Equal(t, 14, first[0].Start)

	second, err := Matches(query, Table("t1").At(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(second))
	assert.Equal(t, 41, second[0].Start)

	both, err := Matches(query, Table("t1").Slice(0, 2))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(both))

	_, err = Matches(query, Table("t1").At(2))
	assert.IsError(t, err, ErrIndexOutOfRange)

	_, err = Matches(query, Table("t1").Slice(0, 3))
	assert.IsError(t, err, ErrIndexOutOfRange)
}

func TestTableSelection(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		selector Selector
		count    int
		alias    string
		wantErr  error
	}{
		{
			name:     "bare table",
			query:    "select t1.c1 from t1",
			selector: Table("t1"),
			count:    1,
			alias:    "t1",
		},
		{
			name:     "aliased table",
			query:    "select a.c1 from t1 AS a",
			selector: TableAs("t1", "a"),
			count:    1,
			alias:    "a",
		},
		{
			name:     "schema qualified",
			query:    "select t1.c1 from schema.t1",
			selector: Table("schema.t1"),
			count:    1,
			alias:    "t1",
		},
		{
			name:     "schema qualified with alias",
			query:    "select s.c1 from schema.t1 AS s",
			selector: TableAs("schema.t1", "s"),
			count:    1,
			alias:    "s",
		},
		{
			name:     "join target",
			query:    "select t1.c1 from t1 join t2 on t1.c1 = t2.c1",
			selector: Table("t2"),
			count:    1,
			alias:    "t2",
		},
		{
			name:     "one match per statement",
			query:    "select t1.c1 from t1; select t1.c1 from t1",
			selector: Table("t1"),
			count:    2,
			alias:    "t1",
		},
		{
			name:     "wrong alias",
			query:    "select a.c1 from t1 AS a",
			selector: TableAs("t1", "b"),
			wantErr:  ErrNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := Matches(tt.query, tt.selector)
			if tt.wantErr != nil {
				assert.IsError(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.count, len(matches))
			for _, m := range matches {
				assert.Equal(t, tt.alias, m.Alias)
			}
		})
	}
}

func TestSafeModeSelection(t *testing.T) {
	on := true

	// A right paren inside a string literal breaks the backward paren scan in
	// raw mode and is invisible in safe mode.
	query := "select bb.c1, bb.c2 from (select * from t where c1 = ')') bb;"
	_, err := Render(query, Subquery("bb"))
	assert.IsError(t, err, ErrInvalidSQL)

	actual, err := RenderWith(query, Options{SafeMode: &on}, Subquery("bb"))
	assert.NoError(t, err)
	assert.Equal(t, "select * from t where c1 = ')'", actual)

	// A commented-out statement produces a phantom overlapping match in raw
	// mode only.
	query = "-- insert into t blah\ninsert into t blah;"
	_, err = Render(query, InsertInto("t"))
	assert.IsError(t, err, ErrMultipleMatch)

	actual, err = RenderWith(query, Options{SafeMode: &on}, InsertInto("t"))
	assert.NoError(t, err)
	assert.Equal(t, "insert into t blah", actual)
}

func TestSelectorString(t *testing.T) {
	sel := Statement(0).Subquery("bb").Body().At(1)
	assert.Equal(t, `sqlpatch.Statement(0).Subquery("bb").Body().At(1)`, sel.String())

	assert.Equal(t, "sqlpatch.Selector{}", Selector{}.String())

	sel = StatementRange(1, 3).TableAs("schema.t1", "s").Slice(0, 2)
	assert.Equal(t, `sqlpatch.StatementRange(1, 3).TableAs("schema.t1", "s").Slice(0, 2)`, sel.String())
}

func TestSelectorImmutability(t *testing.T) {
	base := Statement(0)
	left := base.Table("a")
	right := base.Table("b")

	assert.Equal(t, `sqlpatch.Statement(0).Table("a")`, left.String())
	assert.Equal(t, `sqlpatch.Statement(0).Table("b")`, right.String())
	assert.Equal(t, `sqlpatch.Statement(0)`, base.String())
}

func TestMatchesOffsets(t *testing.T) {
	query := "select bb.c1 from (select * from t) bb"
	matches, err := Matches(query, Subquery("bb"))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(matches))

	m := matches[0]
	assert.Equal(t, "select * from t", m.Text)
	assert.Equal(t, query[m.Start:m.End], m.Text)
	assert.Equal(t, "bb", m.Alias)
}
