package sqlpatch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// view is a located expression within a specific SQL snapshot. bounds
// ([start,end)) cover what a selector selects; the patch sub-span covers the
// part that can be replaced by a VALUES expression, with the parameters that
// control how the replacement is rendered.
type view struct {
	start, end int

	patchStart, patchEnd int // -1 when the expression is not patchable

	patchAlias    string // alias for the VALUES expression, "" for bare VALUES
	origAlias     string // name the SQL referred to, may differ from patchAlias
	selectAllFrom bool   // render SELECT * FROM (VALUES ...) instead of (VALUES ...)
}

func spanView(start, end int) view {
	return view{start: start, end: end, patchStart: -1, patchEnd: -1}
}

// Match is a concrete located expression span, valid for the exact SQL string
// it was evaluated against.
type Match struct {
	Start int
	End   int
	Text  string
	// Alias is the resolved VALUES alias when the expression is patchable
	// with an aliased row set, "" otherwise.
	Alias string
}

// searchSQL pairs the original SQL with the view used for pattern searching.
// In safe mode the search view is the sanitized SQL; offsets are identical in
// both because sanitizing preserves length.
type searchSQL struct {
	raw    string
	search string
}

func newSearchSQL(sql string, safeMode bool) searchSQL {
	if safeMode {
		return searchSQL{raw: sql, search: Sanitize(sql)}
	}
	return searchSQL{raw: sql, search: sql}
}

// findEnclosingParen finds the parenthesis matching the one at parenIdx.
// dir=1 scans forward from a '(' for the matching ')'; dir=-1 scans backward
// from a ')' for the matching '('.
func findEnclosingParen(sql string, parenIdx, dir int) (int, error) {
	open, close := byte('('), byte(')')
	if dir < 0 {
		open, close = ')', '('
	}

	unmatched := 0
	for i := parenIdx + dir; i >= 0 && i < len(sql); i += dir {
		switch sql[i] {
		case open:
			unmatched++
		case close:
			if unmatched == 0 {
				return i, nil
			}
			unmatched--
		}
	}

	return 0, sqlError(ErrInvalidSQL,
		fmt.Sprintf("starting at offset %d going direction %d; left and right parens do not match", parenIdx, dir),
		sql)
}

// endOfStatement returns the offset of the next top-level ';' at or after
// start, or end if the statement runs to the end of the scope.
func endOfStatement(search string, start, end int) int {
	depth := 0
	for i := start; i < end; i++ {
		switch search[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				return i
			}
		}
	}
	return end
}

// splitStatements returns the spans of the statements inside [start,end),
// split on top-level semicolons. A trailing semicolon produces a final empty
// statement, matching naive semicolon splitting.
func splitStatements(search string, start, end int) []view {
	var spans []view
	stmtStart := start
	depth := 0
	for i := start; i < end; i++ {
		switch search[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				spans = append(spans, spanView(stmtStart, i))
				stmtStart = i + 1
			}
		}
	}
	spans = append(spans, spanView(stmtStart, end))
	return spans
}

// findStatements selects statements [first,last) of the scope.
func findStatements(s searchSQL, scope view, first, last int) ([]view, error) {
	parts := splitStatements(s.search, scope.start, scope.end)
	if first < 0 || first >= len(parts) || last > len(parts) || last < first {
		return nil, sqlError(ErrStatementRange,
			fmt.Sprintf("found %d statements, range [%d:%d]", len(parts), first, last),
			s.search[scope.start:scope.end])
	}
	return []view{spanView(parts[first].start, parts[last-1].end)}, nil
}

// findSubqueries locates parenthesized subqueries by their alias: a closing
// paren followed by an optional AS and the alias, scanning backward for the
// opening paren. Un-aliased subqueries (such as inside IN (...)) cannot be
// located this way and are rejected up front.
func findSubqueries(s searchSQL, scope view, alias string) ([]view, error) {
	if alias == "" {
		return nil, fmt.Errorf("%w: un-aliased subqueries cannot be selected", ErrUnsupportedConstruct)
	}

	sql := s.search[scope.start:scope.end]
	re := regexp.MustCompile(`(?i)\)\s*(?:as\s+)?` + regexp.QuoteMeta(alias) + `\b`)
	anchors := re.FindAllStringIndex(sql, -1)
	if anchors == nil {
		return nil, sqlError(ErrNoMatch, fmt.Sprintf("no subquery found for alias %q", alias), sql)
	}

	views := make([]view, 0, len(anchors))
	for _, anchor := range anchors {
		rightParen, aliasEnd := anchor[0], anchor[1]
		leftParen, err := findEnclosingParen(sql, rightParen, -1)
		if err != nil {
			return nil, err
		}
		v := view{
			start:      scope.start + leftParen + 1,
			end:        scope.start + rightParen,
			patchStart: scope.start + leftParen,
			patchEnd:   scope.start + aliasEnd,
			patchAlias: alias,
			origAlias:  alias,
		}
		views = append(views, v)
	}
	return views, nil
}

// fallbackAlias is the synthesized VALUES alias used where the original
// expression has no usable name (CTE and CREATE TABLE AS bodies).
const fallbackAlias = "sqlpatch"

// findCTEs locates common table expressions by alias: the alias after WITH or
// after a comma, optionally followed by a column list, then AS and an opening
// paren that is scanned forward to its match.
func findCTEs(s searchSQL, scope view, alias string) ([]view, error) {
	sql := s.search[scope.start:scope.end]
	re := regexp.MustCompile(`(?i)(?:with\s+|,\s*)` + regexp.QuoteMeta(alias) + `(?:\s*\(.*\)\s*|\s+)as\s*\(`)
	anchors := re.FindAllStringIndex(sql, -1)
	if anchors == nil {
		return nil, sqlError(ErrNoMatch, fmt.Sprintf("no CTE found for alias %q", alias), sql)
	}

	views := make([]view, 0, len(anchors))
	for _, anchor := range anchors {
		leftParen := anchor[1] - 1
		rightParen, err := findEnclosingParen(sql, leftParen, 1)
		if err != nil {
			return nil, err
		}
		v := view{
			start:         scope.start + leftParen + 1,
			end:           scope.start + rightParen,
			patchStart:    scope.start + leftParen + 1,
			patchEnd:      scope.start + rightParen,
			patchAlias:    fallbackAlias,
			origAlias:     fallbackAlias,
			selectAllFrom: true,
		}
		views = append(views, v)
	}
	return views, nil
}

// findInsertIntos locates INSERT INTO statements for a table. The span runs
// from the INSERT keyword to the end of the statement; the patchable body is
// everything after the table name and its optional column list.
func findInsertIntos(s searchSQL, scope view, table string) ([]view, error) {
	sql := s.search[scope.start:scope.end]
	re := regexp.MustCompile(`(?i)\binsert\s+into\s+` + regexp.QuoteMeta(table) + `(?:\s*\(|\s+[\w/-])`)
	anchors := re.FindAllStringIndex(sql, -1)
	if anchors == nil {
		return nil, sqlError(ErrNoMatch, fmt.Sprintf("no INSERT INTO statement found for table %q", table), sql)
	}

	views := make([]view, 0, len(anchors))
	for _, anchor := range anchors {
		insertStart, insertEnd := anchor[0], anchor[1]-1
		endIdx := endOfStatement(sql, insertEnd, len(sql))
		if sql[insertEnd] == '(' {
			rightParen, err := findEnclosingParen(sql, insertEnd, 1)
			if err != nil {
				return nil, err
			}
			// A paren group directly after the table name is either a column
			// list or the whole statement body. If anything follows the
			// closing paren it was a column list: the body starts after it.
			if strings.TrimSpace(sql[rightParen+1:endIdx]) != "" {
				insertEnd = rightParen + 1
			}
		}
		v := view{
			start:      scope.start + insertStart,
			end:        scope.start + endIdx,
			patchStart: scope.start + insertEnd,
			patchEnd:   scope.start + endIdx,
		}
		views = append(views, v)
	}
	return views, nil
}

// findCreateTableAs locates CREATE TABLE ... AS statements for a table. The
// patchable body is everything after the AS keyword, replaced with a
// SELECT * FROM (VALUES ...) form so column names survive the patch.
func findCreateTableAs(s searchSQL, scope view, table string) ([]view, error) {
	sql := s.search[scope.start:scope.end]
	re := regexp.MustCompile(`(?i)\bcreate\s+table\s+` + regexp.QuoteMeta(table) + `(?:\s*\(.*\)\s*|\s+)as\b`)
	anchors := re.FindAllStringIndex(sql, -1)
	if anchors == nil {
		return nil, sqlError(ErrNoMatch, fmt.Sprintf("no CREATE TABLE AS statement found for table %q", table), sql)
	}

	views := make([]view, 0, len(anchors))
	for _, anchor := range anchors {
		createStart, ctaEnd := anchor[0], anchor[1]
		endIdx := endOfStatement(sql, createStart, len(sql))
		v := view{
			start:         scope.start + createStart,
			end:           scope.start + endIdx,
			patchStart:    scope.start + ctaEnd,
			patchEnd:      scope.start + endIdx,
			patchAlias:    fallbackAlias,
			origAlias:     fallbackAlias,
			selectAllFrom: true,
		}
		views = append(views, v)
	}
	return views, nil
}

// findTables locates table references after FROM or JOIN, with an optional
// alias. A table that has an alias in the SQL is only found when the alias is
// supplied too. JOIN variants with keywords between JOIN and the table name
// (such as JOIN LATERAL) are not supported and will not match.
func findTables(s searchSQL, scope view, table, alias string) ([]view, error) {
	sql := s.search[scope.start:scope.end]

	pattern := `(?i)\b(from|join)(\s+)` + regexp.QuoteMeta(table)
	if alias != "" {
		pattern += `\s+(?:as\s+)?` + regexp.QuoteMeta(alias)
	}
	pattern += `\b`
	re := regexp.MustCompile(pattern)

	anchors := re.FindAllStringSubmatchIndex(sql, -1)
	if anchors == nil {
		msg := fmt.Sprintf("no table %q found", table)
		if alias != "" {
			msg = fmt.Sprintf("no table %q with alias %q found", table, alias)
		}
		return nil, sqlError(ErrNoMatch, msg, sql)
	}

	// An alias with a schema qualifier cannot name a VALUES expression, so the
	// last path segment becomes the patch alias and references get rewritten.
	patchAlias := alias
	if patchAlias == "" {
		patchAlias = table
		if idx := strings.LastIndex(table, "."); idx >= 0 {
			patchAlias = table[idx+1:]
		}
	}
	origAlias := alias
	if origAlias == "" {
		origAlias = table
	}

	views := make([]view, 0, len(anchors))
	for _, anchor := range anchors {
		// submatch 2 is the whitespace after FROM/JOIN; the span starts at
		// the table name itself.
		start := anchor[5]
		v := view{
			start:      scope.start + start,
			end:        scope.start + anchor[1],
			patchStart: scope.start + start,
			patchEnd:   scope.start + anchor[1],
			patchAlias: patchAlias,
			origAlias:  origAlias,
		}
		views = append(views, v)
	}
	return views, nil
}

// checkDisjoint verifies the non-overlap invariant for one selector step:
// views sorted by start, and no view starting before the previous one ends.
// Nested identical expressions (an alias reused inside itself) violate this
// and are surfaced as ambiguity rather than silently picking one.
func checkDisjoint(raw string, views []view) error {
	sort.Slice(views, func(i, j int) bool { return views[i].start < views[j].start })
	for i := 1; i < len(views); i++ {
		if views[i].start < views[i-1].end {
			matched := make([]string, len(views))
			for j, v := range views {
				matched[j] = raw[v.start:v.end]
			}
			return multiError(ErrNestedMatch, "refine the selection so matches do not nest", matched)
		}
	}
	return nil
}
