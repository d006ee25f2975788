package service

import "strings"

// CompareExact reports whether actual matches expected after line endings are
// unified to LF and trailing whitespace is dropped from every line and from the end.
func CompareExact(expected, actual string) bool {
	return normalizeOutput(expected) == normalizeOutput(actual)
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
