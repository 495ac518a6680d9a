package patch

import (
	"regexp"
	"sort"
	"strings"
)

// DynamicRef marks a source line that builds a path at runtime while
// mentioning a relocated top-level directory. Such references cannot be
// rewritten statically; the directory gets a compatibility symlink instead.
type DynamicRef struct {
	File   string
	Line   int // 1-based
	Prefix string
	Kind   string
	Code   string // trimmed source line
}

var dynamicPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"f-string", regexp.MustCompile(`\bf["'][^"']*\{[^}]*\}`)},
	{"concat", regexp.MustCompile(`["'][^"']*["']\s*\+|\+\s*["'][^"']*["']`)},
	{"path-concat", regexp.MustCompile(`\bPath\([^)]*\)\s*/`)},
	{"format", regexp.MustCompile(`["'][^"']*["']\s*\.\s*format\(|["'][^"']*%s[^"']*["']\s*%`)},
}

var joinCall = regexp.MustCompile(`os\.path\.join\(([^)]*)\)`)

// scanDynamic finds dynamic path construction per line. It deliberately
// runs over the pre-patch content: a site that was rewritten statically no
// longer needs a symlink, and sites the patcher could not touch keep their
// original shape.
func scanDynamic(rel, content string, prefixes map[string]struct{}) []DynamicRef {
	if len(prefixes) == 0 {
		return nil
	}
	ordered := make([]string, 0, len(prefixes))
	for p := range prefixes {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	var refs []DynamicRef
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		prefix := mentionedPrefix(trimmed, ordered)
		if prefix == "" {
			continue
		}
		kind := dynamicKind(trimmed)
		if kind == "" {
			continue
		}
		refs = append(refs, DynamicRef{
			File: rel, Line: i + 1, Prefix: prefix, Kind: kind, Code: trimmed,
		})
	}
	return refs
}

func dynamicKind(line string) string {
	for _, p := range dynamicPatterns {
		if p.re.MatchString(line) {
			return p.kind
		}
	}
	// os.path.join with at least one non-literal argument
	if m := joinCall.FindStringSubmatch(line); m != nil {
		for _, arg := range strings.Split(m[1], ",") {
			arg = strings.TrimSpace(arg)
			if arg == "" {
				continue
			}
			if arg[0] != '"' && arg[0] != '\'' {
				return "join"
			}
		}
	}
	return ""
}

func mentionedPrefix(line string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.Contains(line, p+"/") ||
			strings.Contains(line, `"`+p+`"`) ||
			strings.Contains(line, "'"+p+"'") {
			return p
		}
	}
	return ""
}
