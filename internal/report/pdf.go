package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Skufu/MediDx/internal/clinical"
)

// ErrPDFUnavailable is returned when PDF export is not configured.
var ErrPDFUnavailable = errors.New("pdf generation is unavailable")

const (
	pdfTitle    = "MediDx Assistant - Differential Diagnosis Report"
	pageMargin  = 15.0
	resultsTopY = 45.0
	lineHeight  = 5.0
	barHeight   = 3.0
)

// ReportFilename names a PDF export for the given day (UTC).
func ReportFilename(t time.Time) string {
	return fmt.Sprintf("MediDx-Report-%s.pdf", t.UTC().Format("2006-01-02"))
}

// PDFWriter renders the results view as an A4 report. A nil *PDFWriter
// reports ErrPDFUnavailable.
//
// Fonts maps a style ("", "B", "I") to TrueType data registered under
// FontFamily. With no Fonts, FontFamily must name a core PDF font, which only
// covers cp1252.
type PDFWriter struct {
	FontFamily string
	Fonts      map[string][]byte

	uncompressed bool
}

// NewPDFWriter embeds the Go fonts so Greek letters and math symbols in
// model output survive into the report.
func NewPDFWriter() *PDFWriter {
	return &PDFWriter{
		FontFamily: "Go",
		Fonts: map[string][]byte{
			"":  goregular.TTF,
			"B": gobold.TTF,
			"I": goitalic.TTF,
		},
	}
}

// Write renders the title block, the patient's age and sex, and one card per
// diagnosis, adding pages until every card is covered.
func (p *PDFWriter) Write(w io.Writer, rec clinical.PatientRecord, list clinical.DiagnosisList) error {
	if p == nil {
		return ErrPDFUnavailable
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(pdfTitle, true)
	doc.SetCreator("MediDx Assistant", true)
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.SetCompression(!p.uncompressed)
	for style, ttf := range p.Fonts {
		doc.AddUTF8FontFromBytes(p.FontFamily, style, ttf)
	}
	tr := func(s string) string { return s }
	if len(p.Fonts) == 0 {
		tr = doc.UnicodeTranslatorFromDescriptor("")
	}

	doc.AddPage()
	doc.SetFont(p.FontFamily, "B", 18)
	// A bad family fails here; stop before drawing every card.
	if err := doc.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	doc.Text(pageMargin, 20, pdfTitle)
	doc.SetFont(p.FontFamily, "", 12)
	doc.Text(pageMargin, 30, "Patient Information:")
	doc.SetFont(p.FontFamily, "", 10)
	doc.Text(pageMargin, 36, tr("Age: "+rec.Age))
	doc.Text(55, 36, tr("Sex: "+string(rec.Sex)))
	doc.SetXY(pageMargin, resultsTopY)

	pageWidth, _ := doc.GetPageSize()
	contentWidth := pageWidth - 2*pageMargin

	if len(list) == 0 {
		doc.SetFont(p.FontFamily, "I", 11)
		doc.MultiCell(contentWidth, lineHeight, noDiagnoses, "", "L", false)
	}
	for i, d := range list {
		p.writeCard(doc, tr, contentWidth, i+1, d)
	}

	if err := doc.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (p *PDFWriter) writeCard(doc *fpdf.Fpdf, tr func(string) string, width float64, rank int, d clinical.Diagnosis) {
	doc.SetFont(p.FontFamily, "B", 13)
	doc.MultiCell(width, 7, tr(fmt.Sprintf("%d. %s", rank, d.DiagnosisName)), "", "L", false)

	doc.SetFont(p.FontFamily, "", 10)
	doc.CellFormat(width, lineHeight, tr("Likelihood: "+FormatProbability(d.Probability)+"%"), "", 1, "L", false, 0, "")

	y := doc.GetY()
	doc.SetFillColor(226, 232, 240)
	doc.Rect(pageMargin, y, width, barHeight, "F")
	doc.SetFillColor(37, 99, 235)
	if fill := width * d.BarPercent() / 100; fill > 0 {
		doc.Rect(pageMargin, y, fill, barHeight, "F")
	}
	doc.Ln(barHeight + 2)

	p.writeList(doc, tr, width, "Supporting Evidence", d.SupportingEvidence)
	p.writeList(doc, tr, width, "Contradicting Evidence", d.ContradictingEvidence)
	p.writeList(doc, tr, width, "Recommended Tests", d.RecommendedTests)
	p.writeList(doc, tr, width, "First-line Treatment", d.TreatmentSuggestions.FirstLine)
	p.writeList(doc, tr, width, "Second-line Treatment", d.TreatmentSuggestions.SecondLine)
	p.writeList(doc, tr, width, "Lifestyle", d.TreatmentSuggestions.Lifestyle)
	p.writeField(doc, tr, width, "Morbidity", d.Morbidity)
	p.writeField(doc, tr, width, "Mortality", d.Mortality)
	doc.Ln(4)
}

func (p *PDFWriter) writeList(doc *fpdf.Fpdf, tr func(string) string, width float64, label string, items []string) {
	if len(items) == 0 {
		return
	}
	doc.SetFont(p.FontFamily, "B", 10)
	doc.CellFormat(width, lineHeight, label+":", "", 1, "L", false, 0, "")
	doc.SetFont(p.FontFamily, "", 10)
	doc.MultiCell(width, lineHeight, tr("- "+strings.Join(items, "\n- ")), "", "L", false)
}

func (p *PDFWriter) writeField(doc *fpdf.Fpdf, tr func(string) string, width float64, label, value string) {
	if value == "" {
		return
	}
	doc.SetFont(p.FontFamily, "B", 10)
	doc.CellFormat(width, lineHeight, label+":", "", 1, "L", false, 0, "")
	doc.SetFont(p.FontFamily, "", 10)
	doc.MultiCell(width, lineHeight, tr(value), "", "L", false)
}
