package sqlpatch

import "fmt"

// stepKind enumerates the expression kinds a selector step can locate.
type stepKind int

const (
	stepStatement stepKind = iota
	stepSubquery
	stepCTE
	stepInsertInto
	stepCreateTableAs
	stepTable
	stepBody
	stepIndex
	stepSlice
)

// step is one link of a selector chain.
type step struct {
	kind stepKind

	name  string // table name or alias, depending on kind
	alias string // table alias for stepTable

	first, last int // statement range, index, or slice bounds
}

// Selector is an immutable, chainable description of which expression(s) to
// locate in a SQL string. Chaining methods return a new Selector and never
// mutate the receiver, so a Selector can be shared and reused freely across
// render and patch calls.
type Selector struct {
	steps []step
}

// append copies the chain before extending it so shared prefixes stay intact.
func (s Selector) append(st step) Selector {
	steps := make([]step, len(s.steps), len(s.steps)+1)
	copy(steps, s.steps)
	return Selector{steps: append(steps, st)}
}

// Statement selects the i-th statement (0-based) of the SQL, split on
// top-level semicolons.
func Statement(i int) Selector { return Selector{}.Statement(i) }

// StatementRange selects statements [first,last) as one contiguous span.
func StatementRange(first, last int) Selector { return Selector{}.StatementRange(first, last) }

// Subquery selects a parenthesized subquery by its alias. Subqueries without
// an alias (for example inside IN (...)) cannot be selected.
func Subquery(alias string) Selector { return Selector{}.Subquery(alias) }

// CTE selects a common table expression by its alias.
func CTE(alias string) Selector { return Selector{}.CTE(alias) }

// InsertInto selects an INSERT INTO statement by its target table.
func InsertInto(table string) Selector { return Selector{}.InsertInto(table) }

// CreateTableAs selects a CREATE TABLE ... AS statement by its table name.
func CreateTableAs(table string) Selector { return Selector{}.CreateTableAs(table) }

// Table selects a table reference after FROM or JOIN. The name must include
// the schema when the SQL qualifies it. A table that carries an alias in the
// SQL must be selected with TableAs instead. Joins with keywords between JOIN
// and the table name (JOIN LATERAL and friends) are not supported.
func Table(name string) Selector { return Selector{}.Table(name) }

// TableAs selects an aliased table reference after FROM or JOIN.
func TableAs(name, alias string) Selector { return Selector{}.TableAs(name, alias) }

// Body refines a chainable selector constructed elsewhere; Body() on the zero
// Selector is only useful combined with Chain.
func Body() Selector { return Selector{}.Body() }

// Statement appends a statement step to the chain.
func (s Selector) Statement(i int) Selector {
	return s.append(step{kind: stepStatement, first: i, last: i + 1})
}

// StatementRange appends a statement range step to the chain.
func (s Selector) StatementRange(first, last int) Selector {
	return s.append(step{kind: stepStatement, first: first, last: last})
}

// Subquery appends a subquery step to the chain.
func (s Selector) Subquery(alias string) Selector {
	return s.append(step{kind: stepSubquery, name: alias})
}

// CTE appends a CTE step to the chain.
func (s Selector) CTE(alias string) Selector {
	return s.append(step{kind: stepCTE, name: alias})
}

// InsertInto appends an INSERT INTO step to the chain.
func (s Selector) InsertInto(table string) Selector {
	return s.append(step{kind: stepInsertInto, name: table})
}

// CreateTableAs appends a CREATE TABLE AS step to the chain.
func (s Selector) CreateTableAs(table string) Selector {
	return s.append(step{kind: stepCreateTableAs, name: table})
}

// Table appends a table step to the chain.
func (s Selector) Table(name string) Selector {
	return s.append(step{kind: stepTable, name: name})
}

// TableAs appends an aliased table step to the chain.
func (s Selector) TableAs(name, alias string) Selector {
	return s.append(step{kind: stepTable, name: name, alias: alias})
}

// Body narrows each match of the previous step to its patchable body, for
// example the SELECT after an INSERT INTO or CREATE TABLE AS.
func (s Selector) Body() Selector {
	return s.append(step{kind: stepBody})
}

// At narrows the previous step's matches to the i-th one.
func (s Selector) At(i int) Selector {
	return s.append(step{kind: stepIndex, first: i})
}

// Slice narrows the previous step's matches to [first,last).
func (s Selector) Slice(first, last int) Selector {
	return s.append(step{kind: stepSlice, first: first, last: last})
}

// Chain concatenates selectors into one. Chain(a, b) is equivalent to
// building b's steps onto a.
func Chain(selectors ...Selector) Selector {
	var steps []step
	for _, sel := range selectors {
		steps = append(steps, sel.steps...)
	}
	return Selector{steps: steps}
}

// String returns a readable form of the chain for error messages.
func (s Selector) String() string {
	if len(s.steps) == 0 {
		return "sqlpatch.Selector{}"
	}
	out := "sqlpatch"
	for _, st := range s.steps {
		switch st.kind {
		case stepStatement:
			if st.last == st.first+1 {
				out += fmt.Sprintf(".Statement(%d)", st.first)
			} else {
				out += fmt.Sprintf(".StatementRange(%d, %d)", st.first, st.last)
			}
		case stepSubquery:
			out += fmt.Sprintf(".Subquery(%q)", st.name)
		case stepCTE:
			out += fmt.Sprintf(".CTE(%q)", st.name)
		case stepInsertInto:
			out += fmt.Sprintf(".InsertInto(%q)", st.name)
		case stepCreateTableAs:
			out += fmt.Sprintf(".CreateTableAs(%q)", st.name)
		case stepTable:
			if st.alias != "" {
				out += fmt.Sprintf(".TableAs(%q, %q)", st.name, st.alias)
			} else {
				out += fmt.Sprintf(".Table(%q)", st.name)
			}
		case stepBody:
			out += ".Body()"
		case stepIndex:
			out += fmt.Sprintf(".At(%d)", st.first)
		case stepSlice:
			out += fmt.Sprintf(".Slice(%d, %d)", st.first, st.last)
		}
	}
	return out
}

// evaluate runs the selector chain against the search view. Step 0 is
// evaluated over the whole scope; every later step is evaluated inside each
// of the previous step's matches, flattening results left to right.
func evaluate(s searchSQL, sel Selector) ([]view, error) {
	views := []view{spanView(0, len(s.raw))}

	for _, st := range sel.steps {
		switch st.kind {
		case stepIndex:
			if st.first < 0 || st.first >= len(views) {
				return nil, fmt.Errorf("%w: index %d with %d matches", ErrIndexOutOfRange, st.first, len(views))
			}
			views = views[st.first : st.first+1]
			continue
		case stepSlice:
			if st.first < 0 || st.last > len(views) || st.first > st.last {
				return nil, fmt.Errorf("%w: range [%d:%d] with %d matches", ErrIndexOutOfRange, st.first, st.last, len(views))
			}
			views = views[st.first:st.last]
			continue
		case stepBody:
			next := make([]view, 0, len(views))
			for _, v := range views {
				if v.patchStart < 0 {
					return nil, sqlError(ErrUnpatchable, "no patchable body found", s.raw[v.start:v.end])
				}
				body := v
				body.start, body.end = v.patchStart, v.patchEnd
				next = append(next, body)
			}
			views = next
			continue
		}

		var next []view
		for _, scope := range views {
			found, err := findInScope(s, scope, st)
			if err != nil {
				return nil, err
			}
			if err := checkDisjoint(s.raw, found); err != nil {
				return nil, err
			}
			next = append(next, found...)
		}
		views = next
	}

	return views, nil
}

func findInScope(s searchSQL, scope view, st step) ([]view, error) {
	switch st.kind {
	case stepStatement:
		return findStatements(s, scope, st.first, st.last)
	case stepSubquery:
		return findSubqueries(s, scope, st.name)
	case stepCTE:
		return findCTEs(s, scope, st.name)
	case stepInsertInto:
		return findInsertIntos(s, scope, st.name)
	case stepCreateTableAs:
		return findCreateTableAs(s, scope, st.name)
	case stepTable:
		return findTables(s, scope, st.name, st.alias)
	default:
		return nil, fmt.Errorf("%w: unknown selector step", ErrUnsupportedConstruct)
	}
}

// Matches evaluates the selector and returns every located span, ordered by
// start offset. Offsets are valid in the exact sql string passed in.
func Matches(sql string, selectors ...Selector) ([]Match, error) {
	return MatchesWith(sql, Options{}, selectors...)
}

// MatchesWith is Matches with per-call option overrides.
func MatchesWith(sql string, opts Options, selectors ...Selector) ([]Match, error) {
	s := newSearchSQL(sql, opts.safeMode())
	views, err := evaluate(s, Chain(selectors...))
	if err != nil {
		return nil, err
	}

	matches := make([]Match, len(views))
	for i, v := range views {
		matches[i] = Match{
			Start: v.start,
			End:   v.end,
			Text:  sql[v.start:v.end],
			Alias: v.patchAlias,
		}
	}
	return matches, nil
}
