package tracking

import (
	"regexp"
	"time"
)

const datePattern = `\d{4}[/-]\d{1,2}[/-]\d{1,2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`

var dateRe = regexp.MustCompile(`\b(` + datePattern + `)\b`)

// day-first layouts are tried before year-first ones; the provider is Indian
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2006/1/2",
	"2/1/06",
	"2-1-06",
}

// findDate returns the first numeric date in s
func findDate(s string) (string, bool) {
	m := dateRe.FindString(s)
	return m, m != ""
}

// looksLikeDate reports whether s contains a numeric date
func looksLikeDate(s string) bool {
	return dateRe.MatchString(s)
}

// parseDate parses the first numeric date in s. Unparseable input yields the
// zero time, which sorts after every real date.
func parseDate(s string) time.Time {
	raw, ok := findDate(s)
	if !ok {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
