package sqlpatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Raw is a caller-supplied, pre-escaped SQL literal. It is rendered verbatim
// with no quoting or escaping, for constructs sqlpatch does not encode itself
// (such as array literals).
type Raw string

// Data is an ordered row set for a patch: declared columns plus positional or
// name-keyed rows. A column may carry an explicit type hint in the form
// "name::type"; the type is split off at the last "::" and appended verbatim
// as a cast to every value in that column.
type Data struct {
	Cols      []string
	Rows      [][]any
	NamedRows []map[string]any
}

// NewData builds a row set from positional rows. Rows shorter than the
// declared columns are null-filled on the right.
func NewData(cols []string, rows ...[]any) *Data {
	return &Data{Cols: cols, Rows: rows}
}

// NewNamedData builds a row set from name-keyed rows. Declared columns absent
// from a row render as null for that row, in declared column order.
func NewNamedData(cols []string, rows ...map[string]any) *Data {
	return &Data{Cols: cols, NamedRows: rows}
}

// splitColumn splits "name::type" on the last "::".
func splitColumn(col string) (name, typ string) {
	if idx := strings.LastIndex(col, "::"); idx >= 0 {
		return col[:idx], col[idx+2:]
	}
	return col, ""
}

// renderValues turns a row set into a VALUES expression. With an alias the
// result is "(VALUES ...) AS alias(cols)"; selectAllFrom additionally wraps
// it in a SELECT * FROM so column names survive in positions where a bare
// aliased VALUES is illegal (CTE and CREATE TABLE AS bodies).
//
// An empty row set renders a single null-filled row with "LIMIT 0" because
// VALUES cannot syntactically express zero rows.
func renderValues(d *Data, alias string, selectAllFrom bool) (string, error) {
	names := make([]string, len(d.Cols))
	types := make([]string, len(d.Cols))
	for i, col := range d.Cols {
		names[i], types[i] = splitColumn(col)
	}

	rows := d.Rows
	if len(d.NamedRows) > 0 {
		if len(names) == 0 {
			return "", fmt.Errorf("%w: columns are required when rows are name-keyed", ErrColumnsNeeded)
		}
		var err error
		rows, err = namedToPositional(d.NamedRows, names)
		if err != nil {
			return "", err
		}
	}

	var values string
	if len(rows) == 0 {
		tuple, err := renderRow(nil, names, types)
		if err != nil {
			return "", err
		}
		values = "VALUES " + tuple + " LIMIT 0"
	} else {
		tuples := make([]string, len(rows))
		for i, row := range rows {
			tuple, err := renderRow(row, names, types)
			if err != nil {
				return "", err
			}
			tuples[i] = tuple
		}
		values = "VALUES " + strings.Join(tuples, ",")
	}

	if alias != "" {
		values = fmt.Sprintf("(%s) AS %s(%s)", values, alias, strings.Join(names, ","))
	}
	if selectAllFrom {
		values = "SELECT * FROM " + values
	}
	return values, nil
}

// namedToPositional lays name-keyed rows out in declared column order,
// filling nulls for columns a row does not mention.
func namedToPositional(namedRows []map[string]any, names []string) ([][]any, error) {
	colPos := make(map[string]int, len(names))
	for i, name := range names {
		colPos[name] = i
	}

	rows := make([][]any, len(namedRows))
	for rowNum, named := range namedRows {
		row := make([]any, len(names))
		for col, val := range named {
			pos, ok := colPos[col]
			if !ok {
				return nil, fmt.Errorf("%w: row %d provides column %q, declared columns are %q",
					ErrColumnMismatch, rowNum, col, strings.Join(names, ", "))
			}
			row[pos] = val
		}
		rows[rowNum] = row
	}
	return rows, nil
}

// renderRow encodes one row tuple. When columns are declared the tuple has
// exactly one value per declared column, null-filling short rows.
func renderRow(row []any, names, types []string) (string, error) {
	width := len(row)
	if len(names) > 0 {
		width = len(names)
	}

	encoded := make([]string, width)
	for i := range encoded {
		var val any
		if i < len(row) {
			val = row[i]
		}
		var hint, col string
		if i < len(types) {
			hint, col = types[i], names[i]
		}
		enc, err := encodeValue(val, hint, col)
		if err != nil {
			return "", err
		}
		encoded[i] = enc
	}
	return "(" + strings.Join(encoded, ",") + ")", nil
}

// Time layouts for the supported temporal casts.
const (
	layoutTimestamp   = "2006-01-02T15:04:05"
	layoutTimestampTZ = "2006-01-02T15:04:05-07:00"
	layoutDate        = "2006-01-02"
	layoutTime        = "15:04:05"
	layoutTimeTZ      = "15:04:05-07:00"
)

// encodeValue serializes a single value to a SQL literal, appending a cast
// for the explicit hint or the kind's inferred type. The value kinds form a
// closed set: adding a kind means adding a case here, never reflective
// dispatch.
func encodeValue(val any, hint, col string) (string, error) {
	var encoded string
	inferred := ""

	switch v := val.(type) {
	case nil:
		encoded = "null"
	case bool:
		if v {
			encoded = "TRUE"
		} else {
			encoded = "FALSE"
		}
	case int:
		encoded = strconv.FormatInt(int64(v), 10)
	case int8:
		encoded = strconv.FormatInt(int64(v), 10)
	case int16:
		encoded = strconv.FormatInt(int64(v), 10)
	case int32:
		encoded = strconv.FormatInt(int64(v), 10)
	case int64:
		encoded = strconv.FormatInt(v, 10)
	case uint:
		encoded = strconv.FormatUint(uint64(v), 10)
	case uint8:
		encoded = strconv.FormatUint(uint64(v), 10)
	case uint16:
		encoded = strconv.FormatUint(uint64(v), 10)
	case uint32:
		encoded = strconv.FormatUint(uint64(v), 10)
	case uint64:
		encoded = strconv.FormatUint(v, 10)
	case float32:
		encoded = strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		encoded = strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		encoded = quoteText(v)
	case Raw:
		encoded = string(v)
	case time.Time:
		return encodeTime(v, hint), nil
	case decimal.Decimal:
		encoded = v.String()
		inferred = "NUMERIC"
	case uuid.UUID:
		encoded = quoteText(v.String())
		inferred = "UUID"
	case map[string]any, []any:
		if hint != "" && !isJSONType(hint) {
			return "", fmt.Errorf("%w: column %q: structured value %v cannot be cast to %q",
				ErrColumnType, col, val, hint)
		}
		blob, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: column %q: %v", ErrColumnType, col, err)
		}
		encoded = quoteText(string(blob))
		inferred = "JSON"
	default:
		return "", fmt.Errorf("%w: column %q: value %v of type %T cannot be encoded",
			ErrColumnType, col, val, val)
	}

	switch {
	case hint != "":
		encoded += "::" + hint
	case inferred != "":
		encoded += "::" + inferred
	}
	return encoded, nil
}

// encodeTime formats a timestamp per the requested temporal cast. Without a
// hint, a UTC-or-offset-bearing time renders as TIMESTAMPTZ; hints narrow the
// rendered precision to match the cast.
func encodeTime(v time.Time, hint string) string {
	switch strings.ToLower(hint) {
	case "":
		return quoteText(v.Format(layoutTimestampTZ)) + "::TIMESTAMPTZ"
	case "timestamp":
		return quoteText(v.Format(layoutTimestamp)) + "::" + hint
	case "timestamptz":
		return quoteText(v.Format(layoutTimestampTZ)) + "::" + hint
	case "date":
		return quoteText(v.Format(layoutDate)) + "::" + hint
	case "time":
		return quoteText(v.Format(layoutTime)) + "::" + hint
	case "timetz":
		return quoteText(v.Format(layoutTimeTZ)) + "::" + hint
	default:
		return quoteText(v.Format(layoutTimestampTZ)) + "::" + hint
	}
}

func isJSONType(typ string) bool {
	switch strings.ToLower(typ) {
	case "json", "jsonb":
		return true
	}
	return false
}

// quoteText quotes a string literal, doubling embedded single quotes. This is
// the only escaping performed: output is inert literal text, not a defense
// against adversarial input.
func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
