// Package render produces certificate PDFs.
package render

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
	"github.com/stemsi/certify-backend/internal/model"
)

// Document is everything printed on a certificate.
type Document struct {
	RecipientName    string
	TestTitle        string
	OrganizationName string
	Score            int
	ProficiencyLevel string
	Template         model.TemplateType
	VerificationCode string
	VerifyURL        string
	IssueDate        time.Time
	ExpiryDate       *time.Time
}

type palette struct {
	heading string
	r, g, b int
}

var palettes = map[model.TemplateType]palette{
	model.TemplateStandard:     {heading: "Certificate of Completion", r: 33, g: 64, b: 120},
	model.TemplateProfessional: {heading: "Professional Certification", r: 20, g: 20, b: 20},
	model.TemplateAchievement:  {heading: "Certificate of Achievement", r: 150, g: 110, b: 20},
}

const qrSize = 256

// PDFRenderer lays out certificates on A4 landscape pages.
type PDFRenderer struct{}

// NewPDFRenderer creates a renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render returns the PDF bytes for doc.
func (r *PDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pal, ok := palettes[doc.Template]
	if !ok {
		pal = palettes[model.TemplateStandard]
	}

	qr, err := qrcode.Encode(doc.VerifyURL, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(pal.heading+" - "+doc.RecipientName, true)
	pdf.SetCreator(doc.OrganizationName, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	w, h := pdf.GetPageSize()

	// Frame
	pdf.SetDrawColor(pal.r, pal.g, pal.b)
	pdf.SetLineWidth(2)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.5)
	pdf.Rect(14, 14, w-28, h-28, "D")

	center := func(y float64, family, style string, size float64, text string) {
		pdf.SetFont(family, style, size)
		pdf.SetXY(20, y)
		pdf.CellFormat(w-40, size*0.5, tr(text), "", 0, "C", false, 0, "")
	}

	pdf.SetTextColor(pal.r, pal.g, pal.b)
	center(28, "Helvetica", "", 14, doc.OrganizationName)
	center(42, "Times", "B", 34, pal.heading)

	pdf.SetTextColor(60, 60, 60)
	center(66, "Helvetica", "", 13, "This certifies that")
	pdf.SetTextColor(0, 0, 0)
	center(80, "Times", "BI", 30, doc.RecipientName)
	pdf.SetTextColor(60, 60, 60)
	center(100, "Helvetica", "", 13, "has successfully completed")
	pdf.SetTextColor(0, 0, 0)
	center(112, "Helvetica", "B", 18, doc.TestTitle)
	center(128, "Helvetica", "", 13, fmt.Sprintf("Score: %d%%   Proficiency: %s", doc.Score, doc.ProficiencyLevel))

	dates := "Issued " + doc.IssueDate.Format("January 2, 2006")
	if doc.ExpiryDate != nil {
		dates += "   Valid until " + doc.ExpiryDate.Format("January 2, 2006")
	}
	center(140, "Helvetica", "", 11, dates)

	// Verification block, bottom right
	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", w-62, h-66, 40, 40, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, doc.VerifyURL)

	pdf.SetFont("Courier", "B", 12)
	pdf.SetXY(24, h-40)
	pdf.CellFormat(w-100, 6, tr("Verification code: "+doc.VerificationCode), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetX(24)
	pdf.CellFormat(w-100, 5, tr(doc.VerifyURL), "", 0, "L", false, 0, doc.VerifyURL)

	if pdf.Err() {
		return nil, fmt.Errorf("layout certificate: %w", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
