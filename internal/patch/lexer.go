// Package patch rewrites statically-determinable path references inside
// project source files to go through the generated path resolver. Source is
// parsed into a token stream (never treated as lines of text), literal path
// expressions are matched against relocated files, and each rewrite is
// recorded precisely enough for an exact revert.
package patch

import (
	"fmt"
	"strings"
)

type tokKind int

const (
	tokName tokKind = iota
	tokString
	tokOp
	tokOther
)

// token is one lexical unit of a Python source file. Start/End are byte
// offsets into the file ([Start, End)); Line is the 1-based line of Start.
type token struct {
	kind   tokKind
	text   string // raw source text, including quotes and prefix for strings
	value  string // decoded value for tokString
	prefix string // lowercased string prefix letters ("f", "rb", ...)
	start  int
	end    int
	line   int
}

func (t token) isOp(s string) bool  { return t.kind == tokOp && t.text == s }
func (t token) isName(s string) bool { return t.kind == tokName && t.text == s }

// plainString reports whether the token is a string literal without
// formatting behavior: not an f-string and not a bytes literal. Raw strings
// are fine; their value is taken verbatim.
func (t token) plainString() bool {
	return t.kind == tokString &&
		!strings.Contains(t.prefix, "f") &&
		!strings.Contains(t.prefix, "b")
}

// lexPython tokenizes Python source. Comments are dropped, indentation and
// newlines are not tokenized (the patcher works on expressions, not
// blocks). An unterminated string is a lex error: such a file is skipped
// with a warning rather than risked.
func lexPython(src []byte) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '\\' && i+1 < n && src[i+1] == '\n':
			// explicit line continuation
			line++
			i += 2
		case c == '#':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '\'' || c == '"':
			tok, next, nl, err := lexString(src, i, i, "", line)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			line += nl
			i = next
		case isNameStart(c):
			start := i
			for i < n && isNamePart(src[i]) {
				i++
			}
			name := string(src[start:i])
			// A short identifier glued to a quote is a string prefix
			// (f"...", r'...', rb"...").
			if i < n && (src[i] == '\'' || src[i] == '"') && isStringPrefix(name) {
				tok, next, nl, err := lexString(src, start, i, strings.ToLower(name), line)
				if err != nil {
					return nil, err
				}
				toks = append(toks, tok)
				line += nl
				i = next
				continue
			}
			toks = append(toks, token{kind: tokName, text: name, start: start, end: i, line: line})
		case c >= '0' && c <= '9':
			start := i
			for i < n && (isNamePart(src[i]) || src[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokOther, text: string(src[start:i]), start: start, end: i, line: line})
		default:
			toks = append(toks, token{kind: tokOp, text: string(c), start: i, end: i + 1, line: line})
			i++
		}
	}
	return toks, nil
}

// lexString consumes a (possibly triple-quoted) string literal beginning at
// the quote position qpos; start is where the token begins (the prefix, if
// any). Returns the token, the offset past the literal, and how many
// newlines it spanned.
func lexString(src []byte, start, qpos int, prefix string, line int) (token, int, int, error) {
	n := len(src)
	quote := src[qpos]
	raw := strings.Contains(prefix, "r")

	triple := qpos+2 < n && src[qpos+1] == quote && src[qpos+2] == quote
	i := qpos + 1
	if triple {
		i = qpos + 3
	}

	var val strings.Builder
	newlines := 0
	for i < n {
		c := src[i]
		if c == '\\' && !raw && i+1 < n {
			val.WriteString(decodeEscape(src[i+1]))
			if src[i+1] == '\n' {
				newlines++
			}
			i += 2
			continue
		}
		if c == quote {
			if !triple {
				return token{
					kind: tokString, text: string(src[start : i+1]),
					value: val.String(), prefix: prefix,
					start: start, end: i + 1, line: line,
				}, i + 1, newlines, nil
			}
			if i+2 < n && src[i+1] == quote && src[i+2] == quote {
				return token{
					kind: tokString, text: string(src[start : i+3]),
					value: val.String(), prefix: prefix,
					start: start, end: i + 3, line: line,
				}, i + 3, newlines, nil
			}
		}
		if c == '\n' {
			if !triple {
				return token{}, 0, 0, fmt.Errorf("line %d: unterminated string literal", line)
			}
			newlines++
		}
		val.WriteByte(c)
		i++
	}
	return token{}, 0, 0, fmt.Errorf("line %d: unterminated string literal", line)
}

func decodeEscape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case '\\':
		return `\`
	case '\'':
		return "'"
	case '"':
		return `"`
	case '\n':
		return ""
	default:
		// Unknown escape: Python keeps the backslash.
		return `\` + string(c)
	}
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

func isStringPrefix(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'r', 'b', 'u', 'f':
		default:
			return false
		}
	}
	return true
}
