package sqlpatch

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the sqlpatch package
var (
	// ErrInvalidSQL indicates an unmatched parenthesis while scanning an expression span.
	ErrInvalidSQL = errors.New("could not find enclosing parenthesis")
	// ErrStatementRange indicates a statement index or range outside the parsed statements.
	ErrStatementRange = errors.New("statement range is out of bounds")
	// ErrNoMatch indicates a required expression was not found in the searched SQL.
	ErrNoMatch = errors.New("no match found")
	// ErrMultipleMatch indicates multiple matches where exactly one was required.
	ErrMultipleMatch = errors.New("multiple matches found")
	// ErrIndexOutOfRange indicates a selector index or range filter outside the match count.
	ErrIndexOutOfRange = errors.New("selector index is out of range")
	// ErrUnpatchable indicates the selected expression has no patchable body.
	ErrUnpatchable = errors.New("expression cannot be patched")
	// ErrColumnsNeeded indicates column names are required for the requested patch.
	ErrColumnsNeeded = errors.New("columns must be provided")
	// ErrColumnMismatch indicates a named row referenced a column missing from the declared columns.
	ErrColumnMismatch = errors.New("row column is missing from declared columns")
	// ErrColumnType indicates a value is incompatible with its explicit or inferred column type.
	ErrColumnType = errors.New("value cannot be encoded for column type")
	// ErrSideEffectExhausted indicates more invocations occurred than side-effect entries supplied.
	ErrSideEffectExhausted = errors.New("side effect has been exhausted")
	// ErrUnsupportedConstruct indicates a SQL construct sqlpatch deliberately does not locate,
	// such as an un-aliased subquery.
	ErrUnsupportedConstruct = errors.New("unsupported SQL construct")
)

// ErrNestedMatch indicates matches of a single selector step nest inside each other,
// for example a subquery alias reused by an enclosing subquery. It matches
// ErrMultipleMatch with errors.Is so callers can treat both as ambiguity.
var ErrNestedMatch = fmt.Errorf("%w: matches are nested", ErrMultipleMatch)

// sqlError wraps a sentinel with a message and the SQL that was searched, so
// match failures are diagnosable without re-running with extra logging.
func sqlError(sentinel error, msg string, sql string) error {
	return fmt.Errorf("%w: %s\nsearched SQL:\n%s", sentinel, msg, strings.TrimSpace(sql))
}

// multiError wraps a sentinel with every matched text for ambiguity diagnostics.
func multiError(sentinel error, msg string, matched []string) error {
	trimmed := make([]string, len(matched))
	for i, m := range matched {
		trimmed[i] = strings.TrimSpace(m)
	}
	return fmt.Errorf("%w: %s\nmatched SQL:\n%s", sentinel, msg, strings.Join(trimmed, "\n---\n"))
}
