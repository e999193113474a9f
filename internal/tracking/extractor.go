package tracking

import (
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// MinRawTextLength is the shortest visible text accepted as a raw-text result
const MinRawTextLength = 20

// Extractor turns a provider page into a Result by running an ordered
// cascade of stages over the parsed document
type Extractor struct {
	stages    []Stage
	fallbacks []Stage
	logger    *slog.Logger
}

// ExtractorOption customizes an Extractor
type ExtractorOption func(*Extractor)

// WithStages replaces the structural stages
func WithStages(stages ...Stage) ExtractorOption {
	return func(e *Extractor) {
		e.stages = stages
	}
}

// WithFallbacks replaces the stages run when structural stages find nothing
func WithFallbacks(stages ...Stage) ExtractorOption {
	return func(e *Extractor) {
		e.fallbacks = stages
	}
}

// WithExtractorLogger sets the logger used for per-stage debug output
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an extractor with the default cascade
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		stages:    DefaultStages(),
		fallbacks: DefaultFallbacks(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the cascade over page. It never fails: the worst outcome is
// a raw-text or not-found result.
func (e *Extractor) Extract(page *RawPage, query string) *Result {
	if page == nil || page.NotFound {
		return notFound(query)
	}

	fields := NewFieldMap()
	fields.Set(ReferenceLabel, query)

	doc, err := ParseDocument(page.HTML)
	if err != nil {
		e.logger.Warn("Failed to parse tracking page", "query", query, "error", err)
		return e.rawText(query, stripTags(page.HTML))
	}

	for _, stage := range e.stages {
		e.apply(stage, doc, fields)
	}
	// the query stays authoritative for the reference label
	fields.Set(ReferenceLabel, query)

	for _, stage := range e.fallbacks {
		if fields.Len() > 1 {
			break
		}
		e.apply(stage, doc, fields)
	}
	fields.Set(ReferenceLabel, query)

	if fields.Len() > 1 {
		return FieldsResult(query, fields)
	}
	return e.rawText(query, doc.VisibleText())
}

func (e *Extractor) apply(stage Stage, doc *Document, fields *FieldMap) {
	before := fields.Len()
	stage.Apply(doc, fields)
	e.logger.Debug("Extraction stage finished",
		"stage", stage.Name(),
		"new_fields", fields.Len()-before,
		"total_fields", fields.Len())
}

func (e *Extractor) rawText(query, text string) *Result {
	if utf8.RuneCountInString(text) >= MinRawTextLength {
		return RawTextResult(query, text)
	}
	return notFound(query)
}

func notFound(query string) *Result {
	return NotFoundResult(query, fmt.Sprintf("No tracking information found for number %s", query))
}
