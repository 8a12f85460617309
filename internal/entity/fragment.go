package entity

import (
	"fmt"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
)

// LocatorKind names the unit of the source document a fragment came from.
type LocatorKind string

const (
	LocatorPage     LocatorKind = "page"
	LocatorSheet    LocatorKind = "sheet"
	LocatorSlide    LocatorKind = "slide"
	LocatorRegion   LocatorKind = "region"
	LocatorDocument LocatorKind = "document"
)

// Locator places a fragment inside the source document. Index is 1-based for
// pages and slides, 0-based for sheets; Region numbers images within the unit.
type Locator struct {
	Kind   LocatorKind `json:"kind"`
	Index  int         `json:"index"`
	Name   string      `json:"name,omitempty"`
	Region int         `json:"region,omitempty"`
}

// Key groups fragments that describe the same unit (a page and its OCR'd images share a key).
func (l Locator) Key() string {
	return fmt.Sprintf("%s:%d", l.Kind, l.Index)
}

func (l Locator) String() string {
	s := fmt.Sprintf("%s %d", l.Kind, l.Index)
	if l.Name != "" {
		s += " (" + l.Name + ")"
	}
	if l.Region > 0 {
		s += fmt.Sprintf(" region %d", l.Region)
	}
	return s
}

// TextFragment is a piece of extracted text with its provenance.
type TextFragment struct {
	Text       string  `json:"text"`
	Locator    Locator `json:"locator"`
	Confidence float32 `json:"confidence"`
	Method     string  `json:"method"`
}

// NativeFragment builds a fragment from an embedded text layer (confidence 1.0).
func NativeFragment(text string, loc Locator) TextFragment {
	return TextFragment{Text: text, Locator: loc, Confidence: 1.0, Method: constants.MethodNative}
}

// NormalizedText is the single cleaned text handed to entity extraction.
type NormalizedText struct {
	Text           string `json:"text"`
	Truncated      bool   `json:"truncated"`
	OriginalLength int    `json:"original_length"`
	// Notes records fragments left out of Text, one line each.
	Notes []string `json:"notes,omitempty"`
}
