package layout

import (
	"math"
	"strings"
	"testing"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/pkg/domain"
)

func testSigners() []domain.Signer {
	return []domain.Signer{
		{Name: "Lena Landlord", Email: "lena@example.com", Role: domain.RoleLandlord, Order: 1},
		{Name: "Tom Tenant", Email: "tom@example.com", Role: domain.RoleTenant, Order: 2},
	}
}

func TestOneFieldPerSigner(t *testing.T) {
	e := testEngine()
	pages, err := e.Layout("Lease", paragraph(100))
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	signers := testSigners()
	pages, placement, err := e.PlaceSignatureBlock(pages, signers)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(placement.Fields) != len(signers) {
		t.Fatalf("expected %d fields, got %d", len(signers), len(placement.Fields))
	}
	for _, f := range placement.Fields {
		if f.Page < 0 || f.Page >= len(pages) {
			t.Fatalf("field page %d out of range (%d pages)", f.Page, len(pages))
		}
	}
}

func TestSignerOrderLandlordFirst(t *testing.T) {
	e := testEngine()
	pages, _ := e.Layout("Lease", "body")
	reversed := []domain.Signer{
		{Name: "Tom Tenant", Email: "tom@example.com", Role: domain.RoleTenant, Order: 2},
		{Name: "Lena Landlord", Email: "lena@example.com", Role: domain.RoleLandlord, Order: 1},
	}
	_, placement, err := e.PlaceSignatureBlock(pages, reversed)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if placement.Fields[0].Role != domain.RoleLandlord {
		t.Fatalf("expected landlord field first, got %s", placement.Fields[0].Role)
	}
	if placement.Fields[0].Y >= placement.Fields[1].Y {
		t.Fatalf("landlord field should sit above the tenant field in provider space")
	}
}

func TestBlockMovesToFreshPageWhenShortOnSpace(t *testing.T) {
	e := testEngine()
	spec := e.Spec()
	// Fill the last page down to the break floor so less than the
	// minimum remains for the signature block.
	body := strings.TrimSpace(strings.Repeat("line\n", 104))
	pages, err := e.Layout("Lease", body)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	before := len(pages)
	if lowestBaseline(pages[before-1], spec)-spec.MarginBottom >= spec.SigMinHeight {
		t.Fatalf("test setup: last page still has room for the block")
	}
	pages, placement, err := e.PlaceSignatureBlock(pages, testSigners())
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(pages) != before+1 {
		t.Fatalf("expected a fresh page for the block, got %d pages (was %d)", len(pages), before)
	}
	if placement.Page != len(pages)-1 {
		t.Fatalf("placement page %d, want last page %d", placement.Page, len(pages)-1)
	}
	// Never split: every signature command sits on the placement page.
	for i, p := range pages {
		for _, cmd := range p.Commands {
			if strings.Contains(cmd.Value, "Signature:") && i != placement.Page {
				t.Fatalf("signature line on page %d, block placed on %d", i, placement.Page)
			}
		}
	}
}

func TestBlockStaysOnLastPageWhenRoomRemains(t *testing.T) {
	e := testEngine()
	pages, err := e.Layout("Lease", "short body")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	pages, placement, err := e.PlaceSignatureBlock(pages, testSigners())
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(pages) != 1 || placement.Page != 0 {
		t.Fatalf("expected block on the single content page, got %d pages placement %d", len(pages), placement.Page)
	}
}

func TestFieldCoordinateRoundTrip(t *testing.T) {
	e := testEngine()
	spec := e.Spec()
	pages, _ := e.Layout("Lease", "body")
	pages, placement, err := e.PlaceSignatureBlock(pages, testSigners())
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	for _, f := range placement.Fields {
		if f.Y < 0 || f.Y > spec.Height {
			t.Fatalf("provider y %f outside [0, %f]", f.Y, spec.Height)
		}
		if f.X != spec.MarginLeft+spec.FieldXOffset {
			t.Fatalf("field x = %f, want %f", f.X, spec.MarginLeft+spec.FieldXOffset)
		}
		// Recover the draw-space baseline and check the conversion.
		drawY := spec.Height - f.Y - spec.FieldYOffset
		var found bool
		for _, cmd := range pages[f.Page].Commands {
			if math.Abs(cmd.Y-drawY) < 1e-6 && strings.Contains(cmd.Value, "Signature:") {
				found = true
			}
		}
		if !found {
			t.Fatalf("no signature line at recovered draw y %f", drawY)
		}
	}
}
