// Package layout lays sanitized text out onto fixed-size pages as an
// ordered sequence of draw commands, and places the signature block
// whose coordinates the signing provider overlays fields onto.
//
// All coordinates are draw-space: bottom-left origin, y increasing
// upward, units in points. Layout is pure; text measurement is supplied
// through the Measurer interface so it is unit-testable without I/O.
package layout

// Font names one of the standard embedded fonts by family and style.
type Font struct {
	Family string
	Style  string // "" regular, "B" bold
}

var (
	BodyFont  = Font{Family: "Times", Style: ""}
	TitleFont = Font{Family: "Times", Style: "B"}
)

// Measurer reports the rendered width of a string in points.
type Measurer interface {
	Width(text string, font Font, size float64) float64
}

// Text is a single draw command: a text run at an x/y baseline.
type Text struct {
	Value string
	X     float64
	Y     float64
	Font  Font
	Size  float64
}

// Page is an ordered list of draw commands plus the page dimensions.
// Produced fresh on every render, never persisted.
type Page struct {
	Width    float64
	Height   float64
	Commands []Text
}

// PageSpec fixes the page geometry and type policy for a render. The
// values are policy choices, not hard requirements; LetterSpec returns
// the contract defaults.
type PageSpec struct {
	Width  float64
	Height float64

	MarginTop    float64
	MarginBottom float64
	MarginLeft   float64
	MarginRight  float64

	BodyFont  Font
	TitleFont Font
	BodySize  float64
	TitleSize float64

	// LineHeight is a multiple of the body font size.
	LineHeight float64

	// BottomBuffer is the safety margin above MarginBottom at which a
	// new page is started.
	BottomBuffer float64

	// SigMinHeight is the minimum remaining height on the last page for
	// the signature block to be placed there rather than on a new page.
	SigMinHeight float64

	// FieldXOffset is the horizontal distance past the left margin at
	// which provider signature fields are anchored, sized to clear the
	// longest signature label.
	FieldXOffset float64

	// FieldYOffset approximates the baseline-to-field-top distance used
	// when converting draw-space y to the provider's top-left origin.
	FieldYOffset float64
}

// LetterSpec returns the US Letter policy: 1-inch margins, 11pt Times
// body, 16pt bold title, 1.4x line height.
func LetterSpec() PageSpec {
	return PageSpec{
		Width:        612,
		Height:       792,
		MarginTop:    72,
		MarginBottom: 72,
		MarginLeft:   72,
		MarginRight:  72,
		BodyFont:     BodyFont,
		TitleFont:    TitleFont,
		BodySize:     11,
		TitleSize:    16,
		LineHeight:   1.4,
		BottomBuffer: 100,
		SigMinHeight: 150,
		FieldXOffset: 115,
		FieldYOffset: 20,
	}
}

// ContentWidth is the horizontal space available to body text.
func (s PageSpec) ContentWidth() float64 {
	return s.Width - s.MarginLeft - s.MarginRight
}

// lineAdvance is the vertical distance between body baselines.
func (s PageSpec) lineAdvance() float64 {
	return s.BodySize * s.LineHeight
}
