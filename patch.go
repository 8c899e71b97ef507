package sqlpatch

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Options overrides the process-wide configuration for a single call. A nil
// field means "use the configured value".
type Options struct {
	SafeMode               *bool
	ReplaceNewPatchAliases *bool
}

func (o Options) safeMode() bool {
	if o.SafeMode != nil {
		return *o.SafeMode
	}
	return SafeMode()
}

func (o Options) replaceNewPatchAliases() bool {
	if o.ReplaceNewPatchAliases != nil {
		return *o.ReplaceNewPatchAliases
	}
	return ReplaceNewPatchAliases()
}

// SideEffect hands out successive row sets for repeated applications of one
// patch, in strict FIFO order. A nil entry means "do not patch on this
// invocation". Next is safe for serialized concurrent use; it never blocks.
type SideEffect struct {
	mu      sync.Mutex
	entries []*Data
	next    int
}

// NewSideEffect builds a side effect from its ordered entries.
func NewSideEffect(entries ...*Data) *SideEffect {
	return &SideEffect{entries: entries}
}

// Next pops the next queued row set. Exhausting the queue is an error, not a
// silent no-op.
func (se *SideEffect) Next() (*Data, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if se.next >= len(se.entries) {
		return nil, fmt.Errorf("%w: all %d entries consumed", ErrSideEffectExhausted, len(se.entries))
	}
	entry := se.entries[se.next]
	se.next++
	return entry, nil
}

// Patch pairs a selector with replacement row data. Unlike the read path,
// applying a patch rewrites every match of its selector.
type Patch struct {
	selector   Selector
	data       *Data
	sideEffect *SideEffect
}

// NewPatch builds a patch that renders the same row set on every application.
func NewPatch(selector Selector, data *Data) *Patch {
	return &Patch{selector: selector, data: data}
}

// NewSideEffectPatch builds a patch whose i-th application renders the i-th
// side-effect entry. The same Patch instance must be reused across
// applications for the queue to advance.
func NewSideEffectPatch(selector Selector, entries ...*Data) *Patch {
	return &Patch{selector: selector, sideEffect: NewSideEffect(entries...)}
}

// Render evaluates selectors against sql and returns the selected text.
// Multiple selectors are chained. Exactly one match is required; ambiguity is
// an error carrying every matched text. With no selectors the SQL is returned
// unchanged.
func Render(sql string, selectors ...Selector) (string, error) {
	return RenderWith(sql, Options{}, selectors...)
}

// RenderWith is Render with per-call option overrides.
func RenderWith(sql string, opts Options, selectors ...Selector) (string, error) {
	if len(selectors) == 0 {
		return sql, nil
	}

	s := newSearchSQL(sql, opts.safeMode())
	views, err := evaluate(s, Chain(selectors...))
	if err != nil {
		return "", err
	}
	v, err := exactlyOne(s.raw, views)
	if err != nil {
		return "", err
	}
	return sql[v.start:v.end], nil
}

// RenderFile renders SQL loaded from a file.
func RenderFile(path string, selectors ...Selector) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read SQL file: %w", err)
	}
	return Render(string(contents), selectors...)
}

func exactlyOne(raw string, views []view) (view, error) {
	switch len(views) {
	case 1:
		return views[0], nil
	case 0:
		return view{}, sqlError(ErrNoMatch, "selector matched nothing", raw)
	default:
		matched := make([]string, len(views))
		for i, v := range views {
			matched[i] = raw[v.start:v.end]
		}
		return view{}, multiError(ErrMultipleMatch,
			"refine the selection with At or Slice to choose one match", matched)
	}
}

// replacement is one pending substring rewrite against the original SQL.
type replacement struct {
	start, end int
	text       string
}

// aliasRewrite records that references to the original qualified name must be
// repointed at the synthesized patch alias.
type aliasRewrite struct {
	orig, alias string
}

// Apply rewrites sql by replacing every match of every patch's selector with
// a rendered row-set expression. All replacement offsets are collected
// against the original sql and applied in one pass in descending start
// order, so earlier replacements never invalidate later offsets.
func Apply(sql string, patches ...*Patch) (string, error) {
	return ApplyWith(sql, Options{}, patches...)
}

// ApplyWith is Apply with per-call option overrides.
func ApplyWith(sql string, opts Options, patches ...*Patch) (string, error) {
	s := newSearchSQL(sql, opts.safeMode())

	var replacements []replacement
	var rewrites []aliasRewrite

	for _, p := range patches {
		data := p.data
		if p.sideEffect != nil {
			next, err := p.sideEffect.Next()
			if err != nil {
				return "", err
			}
			if next == nil {
				continue // skip this patch for this invocation
			}
			data = next
		}
		if data == nil {
			data = &Data{}
		}

		views, err := evaluate(s, p.selector)
		if err != nil {
			return "", err
		}
		if len(views) == 0 {
			return "", sqlError(ErrNoMatch, fmt.Sprintf("selector %s matched nothing", p.selector), sql)
		}

		for _, v := range views {
			if v.patchStart < 0 {
				return "", sqlError(ErrUnpatchable,
					fmt.Sprintf("selector %s selects an expression with no patchable body", p.selector),
					sql[v.start:v.end])
			}
			if v.patchAlias != "" && len(data.Cols) == 0 {
				return "", fmt.Errorf("%w: patching an aliased expression as %q requires column names",
					ErrColumnsNeeded, v.patchAlias)
			}

			values, err := renderValues(data, v.patchAlias, v.selectAllFrom)
			if err != nil {
				return "", err
			}

			// The leading space guards against VALUES abutting a keyword.
			replacements = append(replacements, replacement{
				start: v.patchStart,
				end:   v.patchEnd,
				text:  " " + values,
			})
			if v.patchAlias != "" && v.origAlias != v.patchAlias {
				rewrites = append(rewrites, aliasRewrite{orig: v.origAlias, alias: v.patchAlias})
			}
		}
	}

	sort.Slice(replacements, func(i, j int) bool { return replacements[i].start > replacements[j].start })

	patched := sql
	for _, r := range replacements {
		patched = patched[:r.start] + r.text + patched[r.end:]
	}

	if opts.replaceNewPatchAliases() {
		patched = applyAliasRewrites(patched, rewrites)
	}
	return patched, nil
}

// applyAliasRewrites repoints qualified column references at the synthesized
// patch alias. The replacement is right-justified to the original name's
// width so every other byte offset in the statement is preserved.
func applyAliasRewrites(sql string, rewrites []aliasRewrite) string {
	done := make(map[aliasRewrite]bool, len(rewrites))
	for _, rw := range rewrites {
		if done[rw] {
			continue
		}
		done[rw] = true

		padded := rw.alias
		if pad := len(rw.orig) - len(rw.alias); pad > 0 {
			padded = strings.Repeat(" ", pad) + rw.alias
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(rw.orig) + `\.`)
		sql = re.ReplaceAllLiteralString(sql, padded+".")
	}
	return sql
}
