package layout

import (
	"sort"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"
)

const sigHeadingSize = 12.0

// Field is one provider signature field, in provider-space coordinates:
// top-left origin, y increasing downward.
type Field struct {
	Role  domain.SignerRole
	Email string
	Page  int
	X     float64
	Y     float64
}

// Placement reports where the signature block landed.
type Placement struct {
	Page   int
	Fields []Field
}

// PlaceSignatureBlock appends the SIGNATURES section after the laid-out
// content and computes one provider field per signer. The block is
// never split across pages: if the last page has less than the minimum
// remaining height (or less than the block itself needs), the whole
// block moves to a fresh page.
func (e *Engine) PlaceSignatureBlock(pages []Page, signers []domain.Signer) ([]Page, Placement, error) {
	spec := e.spec
	c := &cursor{spec: spec, pages: pages}
	if len(pages) == 0 {
		c.newPage()
	} else {
		c.y = lowestBaseline(pages[len(pages)-1], spec) - 2*spec.lineAdvance()
	}

	ordered := append([]domain.Signer(nil), signers...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	needed := 2*spec.lineAdvance() + 3*spec.lineAdvance()*float64(len(ordered))
	if min := spec.SigMinHeight; needed < min {
		needed = min
	}
	if c.y-needed < spec.MarginBottom {
		c.newPage()
	}
	pageIdx := len(c.pages) - 1

	if err := c.draw("SIGNATURES", spec.MarginLeft, spec.TitleFont, sigHeadingSize); err != nil {
		return nil, Placement{}, err
	}
	c.y -= 2 * spec.lineAdvance()

	placement := Placement{Page: pageIdx, Fields: make([]Field, 0, len(ordered))}
	for _, s := range ordered {
		line := s.Role.Label() + " Signature: _________________________    Date: _____________"
		if err := c.draw(line, spec.MarginLeft, spec.BodyFont, spec.BodySize); err != nil {
			return nil, Placement{}, err
		}
		// Convert the draw-space baseline (bottom-left origin) to the
		// provider's top-left origin field anchor.
		placement.Fields = append(placement.Fields, Field{
			Role:  s.Role,
			Email: s.Email,
			Page:  pageIdx,
			X:     spec.MarginLeft + spec.FieldXOffset,
			Y:     spec.Height - c.y - spec.FieldYOffset,
		})
		c.y -= 3 * spec.lineAdvance()
	}
	return c.pages, placement, nil
}

// lowestBaseline returns the y of the lowest draw command on the page,
// or the top margin line for an empty page.
func lowestBaseline(p Page, spec PageSpec) float64 {
	low := spec.Height - spec.MarginTop
	for _, cmd := range p.Commands {
		if cmd.Y < low {
			low = cmd.Y
		}
	}
	return low
}
