// Package builtin holds the functions available to every expression and template.
package builtin

import (
	"path"
	"strings"
	"unicode"
)

var BuiltinFunc = map[string]interface{}{
	"json":     builtinJSONFunction,
	"kebab":    KebabCase,
	"basename": path.Base,
	"lower":    strings.ToLower,
}

// KebabCase turns a free form title into a file name friendly identifier.
func KebabCase(s string) string {
	var b strings.Builder
	dash, lower := false, false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && lower {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			dash, lower = false, unicode.IsLower(r)
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash, lower = true, false
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
