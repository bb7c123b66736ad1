package recipes

import (
	"regexp"
	"sort"
)

// placeholderPattern matches {{NAME}} tokens, tolerating inner whitespace.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes {{NAME}} tokens with values from vars. Values are
// inserted literally. Tokens with no value are left untouched.
func Render(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return token
	})
}

// Placeholders returns the distinct placeholder names in a template, sorted.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Lint returns the placeholders used in a template that are not in allowed.
func Lint(template string, allowed []string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		ok[name] = true
	}
	var unknown []string
	for _, name := range Placeholders(template) {
		if !ok[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
