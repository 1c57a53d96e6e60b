// Package wildmat implements the NNTP wildmat pattern grammar used to
// match newsgroup names and header values against operator-supplied
// patterns (spec.md §4.B): '*' any run, '?' any one, '[...]' a class
// with optional '!'/'^' negation, '\x' escapes one char. Matching is
// anchored; malformed patterns are reported as non-matches rather than
// panics, same posture as the teacher's matchWildcardRecursive which
// never errors out of a bad pattern.
package wildmat

// Match reports whether text matches pattern under wildmat rules.
func Match(text, pattern string) bool {
	return match([]rune(text), []rune(pattern), 0, 0)
}

func match(text, pattern []rune, ti, pi int) bool {
	for pi < len(pattern) {
		switch pattern[pi] {
		case '*':
			// Collapse runs of consecutive '*' to avoid redundant recursion.
			for pi < len(pattern) && pattern[pi] == '*' {
				pi++
			}
			if pi == len(pattern) {
				return true
			}
			for i := ti; i <= len(text); i++ {
				if match(text, pattern, i, pi) {
					return true
				}
			}
			return false
		case '?':
			if ti >= len(text) {
				return false
			}
			ti++
			pi++
		case '[':
			end, negate, ok := classBounds(pattern, pi)
			if !ok {
				return false // malformed class: report non-match, don't panic
			}
			if ti >= len(text) {
				return false
			}
			if classMatches(pattern[pi+1:end], text[ti]) == negate {
				return false
			}
			ti++
			pi = end + 1
		case '\\':
			if pi+1 >= len(pattern) {
				return false // trailing backslash: malformed
			}
			if ti >= len(text) || text[ti] != pattern[pi+1] {
				return false
			}
			ti++
			pi += 2
		default:
			if ti >= len(text) || text[ti] != pattern[pi] {
				return false
			}
			ti++
			pi++
		}
	}
	return ti == len(text)
}

// classBounds finds the index of the ']' closing the class that starts
// at pattern[start] == '[', and whether the class is negated.
func classBounds(pattern []rune, start int) (end int, negate bool, ok bool) {
	i := start + 1
	if i < len(pattern) && (pattern[i] == '!' || pattern[i] == '^') {
		negate = true
		i++
	}
	classStart := i
	for i < len(pattern) {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			i += 2
			continue
		}
		if pattern[i] == ']' && i > classStart {
			return i, negate, true
		}
		i++
	}
	return 0, false, false
}

// classMatches reports whether c is in the (already unwrapped) class
// body, supporting 'a-z' ranges and '\x' escapes.
func classMatches(body []rune, c rune) bool {
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch == '\\' && i+1 < len(body) {
			i++
			if body[i] == c {
				return true
			}
			continue
		}
		if i+2 < len(body) && body[i+1] == '-' {
			lo, hi := ch, body[i+2]
			if lo <= hi && c >= lo && c <= hi {
				return true
			}
			i += 2
			continue
		}
		if ch == c {
			return true
		}
	}
	return false
}

// MatchAny reports whether text matches any of patterns.
func MatchAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if Match(text, p) {
			return true
		}
	}
	return false
}
