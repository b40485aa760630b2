package app

import (
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/gosummarize/internal/store"
)

// WriteSummariesPDF renders summaries as a simple PDF: one bold heading per
// function followed by its summary, in the given order.
func WriteSummariesPDF(outPath, title string, records []store.Record) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d functions", len(records)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, r := range records {
		pdf.SetFont("Courier", "B", 10)
		pdf.MultiCell(0, 5, tr(r.Name), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(strings.TrimSpace(r.Summary)), "", "L", false)
		pdf.Ln(3)
	}
	return pdf.OutputFileAndClose(outPath)
}
