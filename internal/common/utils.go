package common

import "strings"

// ContainsAny reports whether s contains any of the substrings, ignoring case.
func ContainsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
