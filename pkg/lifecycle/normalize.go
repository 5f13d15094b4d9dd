package lifecycle

import "strings"

// NormalizeText trims every line, joins the lines with "\n" and trims the result.
// NormalizeText(NormalizeText(s)) == NormalizeText(s) for every s.
func NormalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
