package util

import "strings"

// SafeTruncate truncates a string to maxLen characters without panicking.
// Used when logging credential material, where only a short prefix should
// ever appear. A negative maxLen yields an empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// SplitScope splits a space-delimited scope string into its elements,
// collapsing repeated whitespace.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}

// JoinScope joins scope elements into the space-delimited wire form.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSubset reports whether every element of requested appears in allowed.
func ScopeSubset(requested, allowed []string) bool {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	for _, s := range requested {
		if !set[s] {
			return false
		}
	}
	return true
}
