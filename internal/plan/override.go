package plan

import (
	"regexp"
	"strings"

	"github.com/roach88/repokit/internal/schema"
)

// joinFetchPattern matches "[LEFT [OUTER]] JOIN FETCH alias.path" clauses.
var joinFetchPattern = regexp.MustCompile(`(?i)\s+(?:LEFT\s+(?:OUTER\s+)?)?JOIN\s+FETCH\s+[A-Za-z_][A-Za-z0-9_]*\.([A-Za-z_][A-Za-z0-9_.]*)`)

// Placeholders returns the distinct :name placeholders of text in order of
// first appearance. Placeholders inside quoted literals and "::" casts are ignored.
func Placeholders(text string) []string {
	var names []string
	seen := map[string]bool{}
	forEachPlaceholder(text, func(start, end int) {
		name := text[start+1 : end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	})
	return names
}

// forEachPlaceholder calls fn with the byte range [start,end) of every
// placeholder including its colon.
func forEachPlaceholder(text string, fn func(start, end int)) {
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(text, i)
		case c == ':' && i+1 < len(text) && text[i+1] == ':':
			i++
		case c == ':' && i+1 < len(text) && isIdentStart(text[i+1]) && (i == 0 || !isIdentChar(text[i-1])):
			j := i + 1
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			fn(i, j)
			i = j - 1
		}
	}
}

// ReplacePlaceholders rewrites every placeholder with the result of fn(name).
func ReplacePlaceholders(text string, fn func(name string) string) string {
	var b strings.Builder
	last := 0
	forEachPlaceholder(text, func(start, end int) {
		b.WriteString(text[last:start])
		b.WriteString(fn(text[start+1 : end]))
		last = end
	})
	b.WriteString(text[last:])
	return b.String()
}

// skipQuoted returns the index of the closing quote matching text[i].
// Doubled quotes inside the literal are escapes.
func skipQuoted(text string, i int) int {
	q := text[i]
	for j := i + 1; j < len(text); j++ {
		if text[j] != q {
			continue
		}
		if j+1 < len(text) && text[j+1] == q {
			j++
			continue
		}
		return j
	}
	return len(text) - 1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// extractJoinFetch removes JOIN FETCH clauses and returns the fetched paths
// relative to the root alias.
func extractJoinFetch(text string) (string, []schema.Path) {
	var paths []schema.Path
	for _, m := range joinFetchPattern.FindAllStringSubmatch(text, -1) {
		paths = append(paths, schema.ParsePath(m[1]))
	}
	if len(paths) == 0 {
		return text, nil
	}
	return joinFetchPattern.ReplaceAllString(text, ""), paths
}

// leadingKeyword returns the first word of a statement in upper case.
func leadingKeyword(text string) string {
	t := strings.TrimLeft(text, " \t\r\n(")
	end := 0
	for end < len(t) && isIdentChar(t[end]) {
		end++
	}
	return strings.ToUpper(t[:end])
}

// selectItemCount counts the top-level expressions of the outermost SELECT
// list. star is true when the list contains a * or alias.* item.
func selectItemCount(text string) (n int, star bool, ok bool) {
	start := findTopLevelKeyword(text, "SELECT", 0)
	if start < 0 {
		return 0, false, false
	}
	pos := start + len("SELECT")
	for _, mod := range []string{"DISTINCT", "ALL"} {
		if k := findTopLevelKeyword(text, mod, pos); k >= 0 && strings.TrimSpace(text[pos:k]) == "" {
			pos = k + len(mod)
			break
		}
	}
	end := findTopLevelKeyword(text, "FROM", pos)
	if end < 0 {
		end = len(text)
	}

	list := text[pos:end]
	depth := 0
	item := strings.Builder{}
	items := []string{}
	for i := 0; i < len(list); i++ {
		c := list[i]
		switch {
		case c == '\'' || c == '"':
			j := skipQuoted(list, i)
			item.WriteString(list[i : j+1])
			i = j
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			items = append(items, item.String())
			item.Reset()
			continue
		}
		item.WriteByte(c)
	}
	items = append(items, item.String())

	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			return 0, false, false
		}
		if it == "*" || strings.HasSuffix(it, ".*") {
			star = true
		}
	}
	return len(items), star, true
}

// findTopLevelKeyword returns the byte offset of keyword kw (case-insensitive,
// whole word) at parenthesis depth zero and outside literals, searching from
// offset from. It returns -1 when absent.
func findTopLevelKeyword(text, kw string, from int) int {
	depth := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(text, i)
			continue
		case c == '(':
			depth++
			continue
		case c == ')':
			depth--
			continue
		}
		if i < from || depth != 0 || i+len(kw) > len(text) {
			continue
		}
		if !strings.EqualFold(text[i:i+len(kw)], kw) {
			continue
		}
		if i > 0 && isIdentChar(text[i-1]) {
			continue
		}
		if i+len(kw) < len(text) && isIdentChar(text[i+len(kw)]) {
			continue
		}
		return i
	}
	return -1
}
