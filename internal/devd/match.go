package devd

type matchState int

const (
	literalScan matchState = iota
	wildcardPending
)

// Match compares value against a pattern that may contain '*'.
//
// This is not a general glob. A '*' gives way as soon as the byte after it
// matches the current value byte, or swallows the rest of the value when the
// value is on its last byte. There is no backtracking, so patterns with
// several wildcards, or a wildcard followed by a byte that repeats in the
// value, may not match where a real glob would.
func Match(pattern, value string) bool {
	p, s := 0, 0
	for p < len(pattern) && s < len(value) {
		state := literalScan
		if pattern[p] == '*' {
			state = wildcardPending
		}

		switch state {
		case literalScan:
			if pattern[p] != value[s] {
				return false
			}
			p++
		case wildcardPending:
			switch {
			case p+1 < len(pattern) && pattern[p+1] == value[s]:
				p += 2
			case s+1 == len(value):
				p++
			}
		}
		s++
	}

	// Trailing wildcards match an exhausted value.
	for p < len(pattern) && pattern[p] == '*' && s == len(value) {
		p++
	}
	return p == len(pattern) && s == len(value)
}
