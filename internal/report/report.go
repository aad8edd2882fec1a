// Package report renders analysis results into PDF documents.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/docsift/mailscan/internal/analysis"
	"github.com/docsift/mailscan/internal/models"
)

// Renderer turns a structured analysis result into report bytes.
type Renderer interface {
	Render(kind models.Kind, user *models.User, result *analysis.Result) ([]byte, error)
}

// PDFRenderer produces a single-column A4 report.
type PDFRenderer struct{}

// NewPDFRenderer creates the default renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render builds the report document.
func (r *PDFRenderer) Render(kind models.Kind, user *models.User, result *analysis.Result) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(result.DocumentTitle, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	switch kind {
	case models.KindEvaluate:
		pdf.CellFormat(0, 10, "Document Evaluation Report", "", 1, "L", false, 0, "")
	default:
		pdf.CellFormat(0, 10, "Document Analysis Report", "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 6, fmt.Sprintf("Prepared for %s <%s>", user.Name, user.Email), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, time.Now().UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.SetTextColor(0, 0, 0)

	if result.DocumentTitle != "" {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, result.DocumentTitle, "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Overall score: %.0f%%", result.Score*100), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 5.5, result.Summary, "", "L", false)
	pdf.Ln(4)

	if len(result.Findings) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Findings", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, f := range result.Findings {
			pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s: %s", f.Severity, f.Section, f.Detail), "", "L", false)
			pdf.Ln(1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report PDF: %w", err)
	}

	return buf.Bytes(), nil
}
