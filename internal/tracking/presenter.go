package tracking

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultTitle heads every successful report
	DefaultTitle = "ACPL Cargo Tracking Information"

	// MaxRawTextLength caps the body of raw-text reports, in characters
	MaxRawTextLength = 3000

	// TruncationSuffix is appended to raw-text reports cut at MaxRawTextLength
	TruncationSuffix = "...\n\n(Message truncated due to length)"

	noDetailsMessage = "⚠️ No tracking details found in the response"
)

var (
	referenceAliases = []string{"gcnumber", "gcno", "tracking", "trackingnumber", "gc_ref", "reference"}

	bookingRoles = []string{
		"bookingdate", "bookedon", "bookeddate", "dateofbooking", "sentdate",
		"gcdate", "date", "dispatchdate", "consignmentdate",
	}

	locationKeywords = []string{"location", "lastscan"}

	summaryFields = []string{
		"status", "currentstatus", "deliverystatus", "deliverydate",
		"origin", "destination", "sender", "receiver", "consignor", "consignee",
	}
)

// Presenter renders results as chat-ready text with lightweight emphasis
type Presenter struct {
	title string
}

// NewPresenter creates a presenter; an empty title selects DefaultTitle
func NewPresenter(title string) *Presenter {
	if title == "" {
		title = DefaultTitle
	}
	return &Presenter{title: title}
}

// Present renders result. Output depends only on the result.
func (p *Presenter) Present(result *Result) string {
	if result == nil {
		return noDetailsMessage
	}

	switch result.Kind {
	case KindNotFound, KindTransportError:
		reason := result.Reason
		if reason == "" {
			reason = "Unknown error"
		}
		return "❌ *Tracking Error*: " + reason
	case KindRawText:
		if strings.TrimSpace(result.RawText) == "" {
			return noDetailsMessage
		}
		return p.header() + formatRawText(result.RawText)
	case KindFields:
		if result.Fields == nil || result.Fields.Len() == 0 {
			return noDetailsMessage
		}
		return p.header() + p.formatFields(result)
	default:
		return noDetailsMessage
	}
}

func (p *Presenter) header() string {
	return "📦 *" + p.title + "*\n\n"
}

// normalizeLabel lowercases label and drops all whitespace
func normalizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, label)
}

// LabelMatches reports whether label equals probe ignoring case and whitespace
func LabelMatches(label, probe string) bool {
	return normalizeLabel(label) == normalizeLabel(probe)
}

func containsLabel(set []string, label string) bool {
	norm := normalizeLabel(label)
	for _, s := range set {
		if norm == s {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// MovementEntry is one dated stop in a shipment's history
type MovementEntry struct {
	SortKey  time.Time
	Date     string
	Location string
}

// report tracks which fields have already been rendered
type report struct {
	fields   *FieldMap
	keys     []string
	consumed map[string]bool
}

func (r *report) remaining() []string {
	var out []string
	for _, k := range r.keys {
		if !r.consumed[k] {
			out = append(out, k)
		}
	}
	return out
}

func (r *report) value(key string) string {
	v, _ := r.fields.Get(key)
	return v
}

func (p *Presenter) formatFields(result *Result) string {
	rep := &report{
		fields:   result.Fields,
		keys:     result.Fields.Keys(),
		consumed: make(map[string]bool),
	}

	var b strings.Builder

	// reference
	reference := result.Query
	for _, k := range rep.keys {
		if containsLabel(referenceAliases, k) {
			reference = rep.value(k)
			break
		}
	}
	for _, k := range rep.keys {
		if containsLabel(referenceAliases, k) && rep.value(k) == reference {
			rep.consumed[k] = true
		}
	}
	fmt.Fprintf(&b, "*%s*: %s\n", ReferenceLabel, reference)

	// booking date
	for _, k := range rep.remaining() {
		v := rep.value(k)
		if containsLabel(bookingRoles, k) || (isDigits(k) && strings.ContainsAny(v, "/-")) {
			fmt.Fprintf(&b, "📅 *Booking Date*: %s\n", v)
			rep.consumed[k] = true
			break
		}
	}

	// explicit location
	location := ""
	for _, k := range rep.remaining() {
		norm := normalizeLabel(k)
		for _, kw := range locationKeywords {
			if strings.Contains(norm, kw) {
				location = rep.value(k)
				rep.consumed[k] = true
				break
			}
		}
		if location != "" {
			break
		}
	}

	var summary strings.Builder
	for _, name := range summaryFields {
		for _, k := range rep.remaining() {
			if normalizeLabel(k) == name {
				fmt.Fprintf(&summary, "*%s*: %s\n", k, rep.value(k))
				rep.consumed[k] = true
			}
		}
	}

	history := movementHistory(rep)

	if location == "" {
		for _, e := range history {
			if !e.SortKey.IsZero() && e.Location != "" {
				location = fmt.Sprintf("%s (as of %s)", e.Location, e.Date)
				break
			}
		}
	}
	if location != "" {
		fmt.Fprintf(&b, "📍 *Current Location*: %s\n", location)
	}
	b.WriteString(summary.String())

	if len(history) > 0 {
		b.WriteString("\n*Movement History*\n")
		for _, e := range history {
			if e.Location == "" {
				fmt.Fprintf(&b, "📅 %s\n", e.Date)
				continue
			}
			fmt.Fprintf(&b, "📅 %s - %s\n", e.Date, e.Location)
		}
	}

	if rest := rep.remaining(); len(rest) > 0 {
		b.WriteString("\n*Additional Information*\n")
		for _, k := range rest {
			fmt.Fprintf(&b, "*%s*: %s\n", k, rep.value(k))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// movementHistory consumes every remaining field with a date on either side
// and returns them newest first. When both sides look like dates the label
// is taken as the date.
func movementHistory(rep *report) []MovementEntry {
	var entries []MovementEntry
	for _, k := range rep.remaining() {
		v := rep.value(k)
		var entry MovementEntry
		switch {
		case looksLikeDate(k):
			entry = MovementEntry{Date: k, Location: v}
		case looksLikeDate(v):
			entry = MovementEntry{Date: v, Location: k}
		default:
			continue
		}
		entry.SortKey = parseDate(entry.Date)
		entries = append(entries, entry)
		rep.consumed[k] = true
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SortKey.After(entries[j].SortKey)
	})
	return entries
}

// formatRawText re-flows provider text, bolding "label: value" lines, and
// caps the body at MaxRawTextLength characters
func formatRawText(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if label, value, ok := splitLabelValue(line); ok {
			line = fmt.Sprintf("*%s*: %s", label, value)
		}
		lines = append(lines, line)
	}

	body := strings.Join(lines, "\n")
	if runes := []rune(body); len(runes) > MaxRawTextLength {
		body = string(runes[:MaxRawTextLength]) + TruncationSuffix
	}
	return body
}
