package channel

import (
	"strings"
	"unicode/utf16"
)

// Measure reports how many length units a rune costs against a channel
// limit. Nil counts one unit per rune.
type Measure func(r rune) int

// UTF16Units counts UTF-16 code units, the unit the Telegram Bot API uses
// for its text and caption limits.
func UTF16Units(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// Length is the length of s under m.
func Length(s string, m Measure) int {
	if m == nil {
		return len([]rune(s))
	}
	n := 0
	for _, r := range s {
		n += m(r)
	}
	return n
}

// Split breaks s into chunks of at most limit runes. It prefers newline
// boundaries near the end of each window and drops the newlines it cuts
// on. A limit <= 0 means DefaultTextLimit.
func Split(s string, limit int) []string {
	return SplitMeasured(s, limit, nil)
}

// SplitMeasured is Split with limit counted in m's units.
func SplitMeasured(s string, limit int, m Measure) []string {
	if limit <= 0 {
		limit = DefaultTextLimit
	}
	if m == nil {
		m = func(rune) int { return 1 }
	}
	rs := []rune(s)
	// pre[i] is the length of rs[:i].
	pre := make([]int, len(rs)+1)
	for i, r := range rs {
		pre[i+1] = pre[i] + m(r)
	}
	if pre[len(rs)] <= limit {
		return []string{s}
	}

	var out []string
	start := 0
	for start < len(rs) {
		end := start + 1
		for end < len(rs) && pre[end+1]-pre[start] <= limit {
			end++
		}

		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && pre[i]-pre[start] >= limit/3 {
					cut = i + 1
					break
				}
			}
			if cut == -1 {
				// No usable newline: fall back to the last space.
				for i := end - 1; i > start; i-- {
					if rs[i] == ' ' && pre[i]-pre[start] >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n ")
		if chunk != "" {
			out = append(out, chunk)
		}

		start = end
		for start < len(rs) && (rs[start] == '\n' || rs[start] == ' ') {
			start++
		}
	}
	return out
}
