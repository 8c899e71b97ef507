package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shibukawa/sqlpatch"
)

// parseSelector parses a selector expression into a chain. Segments are
// separated by "/" and evaluated left to right:
//
//	statement:0
//	statements:0-2
//	subquery:impressions
//	cte:daily_total
//	insert:app.users
//	ctas:report
//	table:app.users or table:app.users:u
//	body
//	at:1
//	slice:0-2
func parseSelector(expr string) (sqlpatch.Selector, error) {
	var sel sqlpatch.Selector

	segments := strings.Split(expr, "/")
	if expr == "" {
		return sel, fmt.Errorf("%w", ErrEmptySelector)
	}

	for _, segment := range segments {
		parts := strings.Split(segment, ":")
		kind, args := parts[0], parts[1:]

		var err error
		switch kind {
		case "statement":
			var i int
			if i, err = oneInt(kind, args); err == nil {
				sel = sel.Statement(i)
			}
		case "statements":
			var first, last int
			if first, last, err = oneRange(kind, args); err == nil {
				sel = sel.StatementRange(first, last)
			}
		case "subquery":
			var alias string
			if alias, err = oneString(kind, args); err == nil {
				sel = sel.Subquery(alias)
			}
		case "cte":
			var alias string
			if alias, err = oneString(kind, args); err == nil {
				sel = sel.CTE(alias)
			}
		case "insert":
			var table string
			if table, err = oneString(kind, args); err == nil {
				sel = sel.InsertInto(table)
			}
		case "ctas":
			var table string
			if table, err = oneString(kind, args); err == nil {
				sel = sel.CreateTableAs(table)
			}
		case "table":
			switch len(args) {
			case 1:
				sel = sel.Table(args[0])
			case 2:
				sel = sel.TableAs(args[0], args[1])
			default:
				err = fmt.Errorf("%w: table takes a name and an optional alias", ErrSelectorArgs)
			}
		case "body":
			if len(args) != 0 {
				err = fmt.Errorf("%w: body takes no arguments", ErrSelectorArgs)
			} else {
				sel = sel.Body()
			}
		case "at":
			var i int
			if i, err = oneInt(kind, args); err == nil {
				sel = sel.At(i)
			}
		case "slice":
			var first, last int
			if first, last, err = oneRange(kind, args); err == nil {
				sel = sel.Slice(first, last)
			}
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownSelectorKind, kind)
		}
		if err != nil {
			return sqlpatch.Selector{}, fmt.Errorf("in selector %q: %w", expr, err)
		}
	}
	return sel, nil
}

func oneString(kind string, args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("%w: %s takes one name", ErrSelectorArgs, kind)
	}
	return args[0], nil
}

func oneInt(kind string, args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s takes one index", ErrSelectorArgs, kind)
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %s index %q is not a number", ErrSelectorArgs, kind, args[0])
	}
	return i, nil
}

func oneRange(kind string, args []string) (int, int, error) {
	if len(args) != 1 {
		return 0, 0, fmt.Errorf("%w: %s takes one first-last range", ErrSelectorArgs, kind)
	}
	first, last, ok := strings.Cut(args[0], "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s range %q must look like 0-2", ErrSelectorArgs, kind, args[0])
	}
	f, err1 := strconv.Atoi(first)
	l, err2 := strconv.Atoi(last)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: %s range %q must be numeric", ErrSelectorArgs, kind, args[0])
	}
	return f, l, nil
}
