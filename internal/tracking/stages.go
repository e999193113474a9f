package tracking

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Stage is one pass of the extraction cascade. Stages add fields to the
// shared map and never remove them.
type Stage interface {
	Name() string
	Apply(doc *Document, fields *FieldMap)
}

// DefaultStages returns the structural stages in their fixed order
func DefaultStages() []Stage {
	return []Stage{
		TableStage{},
		LabeledContainerStage{},
		DefinitionListStage{},
		EmphasisStage{},
		AttributeStage{},
	}
}

// DefaultFallbacks returns the stages that only run while nothing beyond the
// reference has been found
func DefaultFallbacks() []Stage {
	return []Stage{
		LineScanStage{MaxLabelLength: 50},
		PatternRescueStage{},
	}
}

var labelPunctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// TableStage reads label/value pairs from the first two cells of table rows
type TableStage struct{}

func (TableStage) Name() string { return "table" }

func (TableStage) Apply(doc *Document, fields *FieldMap) {
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		label := collapseSpace(labelPunctRe.ReplaceAllString(selectionText(cells.Eq(0)), ""))
		value := selectionText(cells.Eq(1))
		if label == "" || value == "" {
			return
		}
		fields.Set(label, value)
	})
}

// LabeledContainerStage pairs label-role elements inside result containers
// with the next value-role element in document order
type LabeledContainerStage struct{}

const (
	containerSelector = "div.info, div.tracking-info, div.result, div.data-row"
	labelSelector     = "div.label, div.title, div.field-name, span.label, span.title, span.field-name, label.label, label.title, label.field-name"
	valueSelector     = "div.value, div.data, div.field-value, span.value, span.data, span.field-value, p.value, p.data, p.field-value"
)

func (LabeledContainerStage) Name() string { return "labeled-container" }

func (LabeledContainerStage) Apply(doc *Document, fields *FieldMap) {
	values := doc.Find(valueSelector)
	if values.Length() == 0 {
		return
	}

	doc.Find(containerSelector).Each(func(_ int, container *goquery.Selection) {
		container.Find(labelSelector).Each(func(_ int, label *goquery.Selection) {
			key := selectionText(label)
			if key == "" {
				return
			}
			value := nextValue(doc, values, label.Nodes[0])
			if value == "" {
				return
			}
			fields.Set(key, value)
		})
	})
}

// nextValue returns the text of the first candidate after node in document order
func nextValue(doc *Document, candidates *goquery.Selection, node *html.Node) string {
	pos := doc.Position(node)
	for _, n := range candidates.Nodes {
		if doc.Position(n) > pos {
			return selectionText(goquery.NewDocumentFromNode(n).Selection)
		}
	}
	return ""
}

// DefinitionListStage pairs the i-th dt with the i-th dd of each list
type DefinitionListStage struct{}

func (DefinitionListStage) Name() string { return "definition-list" }

func (DefinitionListStage) Apply(doc *Document, fields *FieldMap) {
	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		terms := dl.Find("dt")
		descs := dl.Find("dd")
		n := min(terms.Length(), descs.Length())
		for i := 0; i < n; i++ {
			key := selectionText(terms.Eq(i))
			value := selectionText(descs.Eq(i))
			if key != "" && value != "" {
				fields.Set(key, value)
			}
		}
	})
}

// EmphasisStage reads "<b>Label:</b> value" runs inside paragraphs
type EmphasisStage struct{}

func (EmphasisStage) Name() string { return "emphasis" }

func (EmphasisStage) Apply(doc *Document, fields *FieldMap) {
	doc.Find("p").Find("strong, b").Each(func(_ int, strong *goquery.Selection) {
		key := strings.TrimSpace(strings.TrimRight(selectionText(strong), ":"))
		next := strong.Nodes[0].NextSibling
		if key == "" || next == nil || next.Type != html.TextNode {
			return
		}
		if value := collapseSpace(next.Data); value != "" {
			fields.Set(key, value)
		}
	})
}

// AttributeStage reads name/value pairs straight from form controls
type AttributeStage struct{}

var skippedInputTypes = map[string]bool{
	"hidden":   true,
	"submit":   true,
	"button":   true,
	"reset":    true,
	"image":    true,
	"password": true,
	"file":     true,
}

func (AttributeStage) Name() string { return "attribute" }

func (AttributeStage) Apply(doc *Document, fields *FieldMap) {
	reference, _ := fields.Get(ReferenceLabel)

	set := func(name, value string) {
		name = strings.TrimSpace(name)
		value = collapseSpace(value)
		if name == "" || value == "" || value == reference {
			return
		}
		fields.Set(name, value)
	}

	doc.Find("input[name], select[name], textarea[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		switch goquery.NodeName(s) {
		case "input":
			typ := strings.ToLower(s.AttrOr("type", "text"))
			if skippedInputTypes[typ] {
				return
			}
			if typ == "checkbox" || typ == "radio" {
				if _, checked := s.Attr("checked"); !checked {
					return
				}
			}
			set(name, s.AttrOr("value", ""))
		case "select":
			opt := s.Find("option[selected]").First()
			if opt.Length() == 0 {
				return
			}
			set(name, opt.AttrOr("value", opt.Text()))
		case "textarea":
			set(name, s.Text())
		}
	})
}

// LineScanStage splits visible text lines on their first colon
type LineScanStage struct {
	MaxLabelLength int
}

func (LineScanStage) Name() string { return "line-scan" }

func (s LineScanStage) Apply(doc *Document, fields *FieldMap) {
	for _, line := range doc.Lines() {
		label, value, ok := splitLabelValue(line)
		if !ok || len([]rune(label)) >= s.MaxLabelLength {
			continue
		}
		fields.Set(label, value)
	}
}

// splitLabelValue splits line on its first colon, requiring both sides
func splitLabelValue(line string) (string, string, bool) {
	label, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return "", "", false
	}
	return label, value, true
}

// PatternRescueStage searches the flattened page text for a status line and
// a delivery or generic date
type PatternRescueStage struct{}

var (
	statusPatternRe = regexp.MustCompile(`(?i)\bstatus\b\s*[:\-]?\s*([^\n]+)`)
	deliveryDateRe  = regexp.MustCompile(`(?i)\bdelivery\b[^\n\d]{0,30}(` + datePattern + `)`)
	anyDateRe       = regexp.MustCompile(`(?i)\bdate\b[^\n\d]{0,30}(` + datePattern + `)`)
)

func (PatternRescueStage) Name() string { return "pattern-rescue" }

func (PatternRescueStage) Apply(doc *Document, fields *FieldMap) {
	text := doc.VisibleText()

	if m := statusPatternRe.FindStringSubmatch(text); m != nil && !fields.HasFold("Status") {
		if value := strings.TrimSpace(m[1]); value != "" {
			fields.Set("Status", value)
		}
	}
	if m := deliveryDateRe.FindStringSubmatch(text); m != nil && !fields.HasFold("Delivery Date") {
		fields.Set("Delivery Date", m[1])
		return
	}
	if m := anyDateRe.FindStringSubmatch(text); m != nil && !fields.HasFold("Date") {
		fields.Set("Date", m[1])
	}
}
