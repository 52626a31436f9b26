package derive

import (
	"strings"
	"unicode"

	"github.com/roach88/repokit/internal/schema"
)

// ResolvePath resolves a camel-case property expression such as "TeamName"
// or "teamName" against the property graph rooted at root.
//
// An underscore forces a segment boundary ("Team_Name" is team.name and
// nothing else). Without underscores every split of the words is tried and
// the deepest resolution wins; among equally deep resolutions the one with
// the longest leading segment wins.
func ResolvePath(reg *schema.Registry, root, text string) (schema.Path, bool) {
	owner, ok := reg.Entity(root)
	if !ok || text == "" {
		return nil, false
	}

	if strings.Contains(text, "_") {
		var path schema.Path
		for _, part := range strings.Split(text, "_") {
			if part == "" {
				return nil, false
			}
			path = append(path, decapitalize(part))
		}
		if _, err := reg.Resolve(root, path); err != nil {
			return nil, false
		}
		return path, true
	}

	words := splitWords(capitalize(text))
	var best schema.Path
	for _, candidate := range enumerate(reg, owner, words) {
		if len(candidate) > len(best) {
			best = candidate
		}
	}
	return best, best != nil
}

// enumerate lists every resolution of words against owner, longest head first.
func enumerate(reg *schema.Registry, owner *schema.Entity, words []string) []schema.Path {
	var out []schema.Path
	for k := len(words); k >= 1; k-- {
		head := decapitalize(strings.Join(words[:k], ""))
		if k == len(words) {
			if _, ok := owner.Property(head); ok {
				out = append(out, schema.Path{head})
				continue
			}
			if _, ok := owner.Association(head); ok {
				out = append(out, schema.Path{head})
			}
			continue
		}
		assoc, ok := owner.Association(head)
		if !ok {
			continue
		}
		target, ok := reg.Entity(assoc.Target)
		if !ok {
			continue
		}
		for _, tail := range enumerate(reg, target, words[k:]) {
			out = append(out, append(schema.Path{head}, tail...))
		}
	}
	return out
}

// splitWords splits at case transitions: "TeamName" -> [Team Name],
// "HTTPStatus" -> [HTTP Status]. Digits stay with the preceding word.
func splitWords(s string) []string {
	runes := []rune(s)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prev := runes[i-1]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		words = append(words, string(runes[start:]))
	}
	return words
}

// decapitalize lowers the first letter unless the first two are both upper
// case, so "Username" becomes "username" and "URL" stays "URL".
func decapitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	if len(runes) > 1 && unicode.IsUpper(runes[0]) && unicode.IsUpper(runes[1]) {
		return s
	}
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// startsWord reports whether s[i:] begins a new word: the end of s or an upper-case letter.
func startsWord(s string, i int) bool {
	return i >= len(s) || (s[i] >= 'A' && s[i] <= 'Z')
}
