package report

import (
	"bytes"
	"testing"

	"github.com/docsift/mailscan/internal/analysis"
	"github.com/docsift/mailscan/internal/models"
)

func TestRenderProducesPDF(t *testing.T) {
	t.Parallel()

	renderer := NewPDFRenderer()

	data, err := renderer.Render(models.KindAnalyze,
		&models.User{Name: "Ada Lovelace", Email: "ada@example.com"},
		&analysis.Result{
			DocumentTitle: "Supplier Contract",
			Summary:       "The document is largely consistent with the template.",
			Score:         0.87,
			Findings: []analysis.Finding{
				{Section: "4.2", Severity: "medium", Detail: "missing liability cap"},
			},
		})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output does not start with a PDF header")
	}
	if len(data) < 500 {
		t.Errorf("suspiciously small PDF: %d bytes", len(data))
	}
}

func TestRenderWithoutFindings(t *testing.T) {
	t.Parallel()

	renderer := NewPDFRenderer()

	data, err := renderer.Render(models.KindEvaluate,
		&models.User{Name: "Ada", Email: "ada@example.com"},
		&analysis.Result{Summary: "No issues found.", Score: 1})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output does not start with a PDF header")
	}
}
