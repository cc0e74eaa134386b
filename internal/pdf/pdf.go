// Package pdf turns laid-out pages into the final binary artifact using
// the standard embedded Type1 fonts, and exposes their metrics to the
// layout engine.
package pdf

import (
	"bytes"
	"errors"
	"sync"

	"github.com/go-pdf/fpdf"

	"github.com/d4vid4nderson/Tenant-Wise-sub001/internal/layout"
)

// Metrics measures text with the core font width tables. It performs no
// I/O and is safe for concurrent use.
type Metrics struct {
	mu  sync.Mutex
	doc *fpdf.Fpdf
	tr  func(string) string
}

func NewMetrics() *Metrics {
	doc := fpdf.New("P", "pt", "Letter", "")
	return &Metrics{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}
}

func (m *Metrics) Width(text string, font layout.Font, size float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.SetFont(font.Family, font.Style, size)
	return m.doc.GetStringWidth(m.tr(text))
}

// Renderer replays draw commands into a PDF document. Draw commands use
// a bottom-left origin; fpdf wants top-left, so y flips here and only
// here.
type Renderer struct{}

func NewRenderer() Renderer { return Renderer{} }

func (Renderer) Render(pages []layout.Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.New("pdf: no pages to render")
	}
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetAutoPageBreak(false, 0)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	for _, p := range pages {
		doc.AddPageFormat("P", fpdf.SizeType{Wd: p.Width, Ht: p.Height})
		for _, cmd := range p.Commands {
			doc.SetFont(cmd.Font.Family, cmd.Font.Style, cmd.Size)
			doc.Text(cmd.X, p.Height-cmd.Y, tr(cmd.Value))
		}
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
