package storage

import (
	"path"
	"strings"
	"unicode"
)

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {},
}

// SanitizeFilename reduces a client supplied name to a flat ASCII name made of
// letters, digits, '_', '-' and '.'. Directory parts and leading dots are
// dropped. It returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.ReplaceAll(name, "/", " ")

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		case r == '.' || r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			continue
		}
		lastUnderscore = r == '_'
	}

	clean := strings.Trim(b.String(), "._")
	if clean == "" {
		return ""
	}
	stem := strings.ToUpper(strings.TrimSuffix(clean, path.Ext(clean)))
	if _, reserved := reservedNames[stem]; reserved {
		clean = "_" + clean
	}
	return clean
}

// JoinKey builds an object key from parts, rejecting traversal segments.
func JoinKey(parts ...string) (string, bool) {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		for _, seg := range strings.Split(p, "/") {
			if seg == "" || seg == "." || seg == ".." {
				return "", false
			}
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) == 0 {
		return "", false
	}
	return strings.Join(cleaned, "/"), true
}
