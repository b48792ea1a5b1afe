// internal/resume/docx.go
package resume

import (
	"fmt"
	"strings"

	"baliance.com/gooxml/document"
)

// extractDOCX joins the runs of each body paragraph, one paragraph per line.
func extractDOCX(path string) (string, error) {
	doc, err := document.Open(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var lines []string
	for _, p := range doc.Paragraphs() {
		var b strings.Builder
		for _, r := range p.Runs() {
			b.WriteString(r.Text())
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
