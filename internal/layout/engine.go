package layout

import (
	"errors"
	"strings"
)

// ErrOverflow cannot occur by construction (the page-break rule always
// makes forward progress); it is a defensive invariant check and fatal
// if it ever triggers.
var ErrOverflow = errors.New("layout: draw command placed below page bottom")

type Engine struct {
	spec PageSpec
	m    Measurer
}

func NewEngine(spec PageSpec, m Measurer) *Engine {
	return &Engine{spec: spec, m: m}
}

func (e *Engine) Spec() PageSpec { return e.spec }

// cursor tracks the current page and vertical position while emitting
// draw commands top-down in draw-space (y decreases as text advances).
type cursor struct {
	spec  PageSpec
	pages []Page
	y     float64
}

func newCursor(spec PageSpec) *cursor {
	c := &cursor{spec: spec}
	c.newPage()
	return c
}

func (c *cursor) newPage() {
	c.pages = append(c.pages, Page{Width: c.spec.Width, Height: c.spec.Height})
	c.y = c.spec.Height - c.spec.MarginTop
}

// breakIfNeeded starts a new page when the cursor would cross the
// bottom margin plus the safety buffer.
func (c *cursor) breakIfNeeded() {
	if c.y < c.spec.MarginBottom+c.spec.BottomBuffer {
		c.newPage()
	}
}

func (c *cursor) draw(text string, x float64, font Font, size float64) error {
	if c.y < 0 {
		return ErrOverflow
	}
	last := len(c.pages) - 1
	c.pages[last].Commands = append(c.pages[last].Commands, Text{
		Value: text,
		X:     x,
		Y:     c.y,
		Font:  font,
		Size:  size,
	})
	return nil
}

// Layout renders the title and body onto pages. Identical inputs always
// yield identical pages; signature-field placement depends on it.
func (e *Engine) Layout(title, body string) ([]Page, error) {
	spec := e.spec
	c := newCursor(spec)

	if title != "" {
		tw := e.m.Width(title, spec.TitleFont, spec.TitleSize)
		x := (spec.Width - tw) / 2
		if x < spec.MarginLeft {
			x = spec.MarginLeft
		}
		if err := c.draw(title, x, spec.TitleFont, spec.TitleSize); err != nil {
			return nil, err
		}
		c.y -= spec.TitleSize * spec.LineHeight
		c.y -= spec.lineAdvance()
	}

	for _, logical := range strings.Split(body, "\n") {
		if strings.TrimSpace(logical) == "" {
			// Paragraph spacing: advance without drawing.
			c.y -= spec.lineAdvance()
			continue
		}
		for _, visual := range e.wrap(logical) {
			c.breakIfNeeded()
			if err := c.draw(visual, spec.MarginLeft, spec.BodyFont, spec.BodySize); err != nil {
				return nil, err
			}
			c.y -= spec.lineAdvance()
		}
	}
	return c.pages, nil
}

// wrap greedily packs words into visual lines no wider than the content
// width. A single word wider than the content width is emitted alone.
func (e *Engine) wrap(logical string) []string {
	spec := e.spec
	var lines []string
	var current string
	for _, word := range strings.Fields(logical) {
		if current == "" {
			current = word
			continue
		}
		candidate := current + " " + word
		if e.m.Width(candidate, spec.BodyFont, spec.BodySize) > spec.ContentWidth() {
			lines = append(lines, current)
			current = word
		} else {
			current = candidate
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
