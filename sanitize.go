package sqlpatch

// Sanitize returns a search view of sql with the bodies of string literals and
// comments blanked out. The result has exactly the same length as the input so
// byte offsets found in the view remain valid in the original string. The
// delimiters themselves ('...', $tag$...$tag$, --, /* */) are preserved; only
// the bytes between them become spaces.
//
// Unterminated literals and comments are tolerated: the remainder of the input
// is blanked without error, since partial SQL fragments (such as an extracted
// subquery body) are supported input.
//
// Sanitize is idempotent: Sanitize(Sanitize(sql)) == Sanitize(sql).
func Sanitize(sql string) string {
	out := []byte(sql)
	i := 0

	for i < len(out) {
		switch out[i] {
		case '\'':
			i = blankQuoted(out, i)
		case '$':
			if end, ok := dollarTag(out, i); ok {
				i = blankDollarQuoted(out, i, end)
			} else {
				i++
			}
		case '-':
			if i+1 < len(out) && out[i+1] == '-' {
				i = blankLineComment(out, i)
			} else {
				i++
			}
		case '/':
			if i+1 < len(out) && out[i+1] == '*' {
				i = blankBlockComment(out, i)
			} else {
				i++
			}
		default:
			i++
		}
	}

	return string(out)
}

// blankQuoted blanks a single-quoted literal starting at the opening quote.
// A doubled quote inside the literal reads as two adjacent literals, which
// blanks the same bytes either way.
func blankQuoted(out []byte, start int) int {
	i := start + 1
	for i < len(out) && out[i] != '\'' {
		out[i] = ' '
		i++
	}
	if i < len(out) {
		i++ // keep closing quote
	}
	return i
}

// dollarTag reports whether a dollar-quote delimiter such as $$ or $tag$
// starts at i, returning the index just past the delimiter.
func dollarTag(out []byte, i int) (end int, ok bool) {
	j := i + 1
	for j < len(out) && (isWordByte(out[j])) {
		j++
	}
	if j < len(out) && out[j] == '$' {
		return j + 1, true
	}
	return 0, false
}

// blankDollarQuoted blanks the body of a dollar-quoted literal. tagEnd is the
// index just past the opening delimiter; the body runs until the identical
// closing delimiter or end of input.
func blankDollarQuoted(out []byte, start, tagEnd int) int {
	tag := string(out[start:tagEnd])
	i := tagEnd
	for i < len(out) {
		if out[i] == '$' && i+len(tag) <= len(out) && string(out[i:i+len(tag)]) == tag {
			return i + len(tag)
		}
		out[i] = ' '
		i++
	}
	return i
}

func blankLineComment(out []byte, start int) int {
	i := start + 2
	for i < len(out) && out[i] != '\n' {
		out[i] = ' '
		i++
	}
	return i // the newline, if any, stays as-is
}

// blankBlockComment blanks a block comment. Block comments do not nest in the
// target dialect: the first */ terminates the comment.
func blankBlockComment(out []byte, start int) int {
	i := start + 2
	for i < len(out) {
		if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
			return i + 2
		}
		out[i] = ' '
		i++
	}
	return i
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
