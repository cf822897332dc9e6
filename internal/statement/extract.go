package statement

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadablePDF is returned when the document cannot be opened or has no text layer.
var ErrUnreadablePDF = errors.New("PDF could not be read")

// PDFMagic starts every PDF document.
const PDFMagic = "%PDF-"

// IsPDF reports whether head starts with the PDF signature.
func IsPDF(head []byte) bool {
	return strings.HasPrefix(string(head), PDFMagic)
}

// ExtractText returns the text of a PDF page by page, one line per text row.
// Rows are ordered top to bottom and their text runs left to right.
func ExtractText(r io.ReaderAt, size int64) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadablePDF, rec)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}

	var sb strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrUnreadablePDF, i, err)
		}
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, t := range row.Content {
				if s := strings.TrimSpace(t.S); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				sb.WriteString(strings.Join(parts, " "))
				sb.WriteByte('\n')
			}
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text layer", ErrUnreadablePDF)
	}
	return sb.String(), nil
}
