package datamodel

import "strings"

// Separator splits path identifiers. Identifiers are never escaped.
const Separator = "."

// SplitPath splits a literal path into identifiers. The empty path addresses the
// root and yields no identifiers. ok is false when any identifier is empty, e.g.
// "Car..Speed" or "Speed.".
func SplitPath(path string) (idents []string, ok bool) {
	if path == "" {
		return nil, true
	}
	idents = strings.Split(path, Separator)
	for _, ident := range idents {
		if ident == "" {
			return idents, false
		}
	}
	return idents, true
}

// JoinPath joins identifiers, skipping empty ones.
// E.g. JoinPath("Car", "", "Speed") → "Car.Speed"
func JoinPath(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(part)
	}
	return b.String()
}

// ParentPath returns the path without its last identifier and that identifier.
// E.g. "Car.Tyres.FrontLeft" → ("Car.Tyres", "FrontLeft"), "Speed" → ("", "Speed")
func ParentPath(path string) (parent, last string) {
	i := strings.LastIndex(path, Separator)
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// IsDescendant reports whether path lies strictly below ancestor. Every
// non-empty path is a descendant of the root path "".
func IsDescendant(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return strings.HasPrefix(path, ancestor+Separator)
}
