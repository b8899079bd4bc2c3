// Package strx holds small string helpers shared by config and topic code.
package strx

import "strings"

// Coalesce returns s if non-empty, otherwise d.
func Coalesce(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

// JoinTopic joins slash-separated segments, dropping empty ones and the
// slashes around each segment: ("a/", "", "/b") -> "a/b".
func JoinTopic(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(p)
	}
	return b.String()
}
