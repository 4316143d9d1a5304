package tools

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffContext is the number of unchanged lines around each hunk
const diffContext = 3

// unifiedDiff returns the hunks turning before into after, without file
// headers, and the number of added and removed lines.
func unifiedDiff(before, after string) (diff string, adds, dels int) {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       difflib.SplitLines(before),
		B:       difflib.SplitLines(after),
		Context: diffContext,
	})
	if err != nil || out == "" {
		return "", 0, 0
	}

	var hunks []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			adds++
		case strings.HasPrefix(line, "-"):
			dels++
		}
		hunks = append(hunks, line)
	}
	return strings.Join(hunks, "\n"), adds, dels
}
