// internal/resume/pdf.go
package resume

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF pulls text out of every page's content stream.
func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return "", fmt.Errorf("pdfcpu read: %w", err)
	}

	var pages []string
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if text := decodeContentStream(data); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// contentTokenRe matches literal strings and the text operators that place or show them.
var contentTokenRe = regexp.MustCompile(`\((?:\\.|[^\\)])*\)|\bT[dDjJ*]|\bET\b|['"]`)

// decodeContentStream renders the text-showing operators of a page content
// stream. Each text object end and each line move becomes a line break.
func decodeContentStream(data []byte) string {
	var (
		out     strings.Builder
		pending []string
	)
	newline := func() {
		if s := out.String(); s != "" && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}
	flush := func() {
		out.WriteString(strings.Join(pending, ""))
		pending = pending[:0]
	}

	for _, tok := range contentTokenRe.FindAll(data, -1) {
		switch op := string(tok); {
		case tok[0] == '(':
			pending = append(pending, unescapePDF(tok[1:len(tok)-1]))
		case op == "Tj" || op == "TJ":
			flush()
		case op == "'" || op == `"`:
			newline()
			flush()
		default:
			pending = pending[:0]
			newline()
		}
	}

	lines := strings.Split(out.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// unescapePDF decodes the backslash escapes of a PDF literal string.
func unescapePDF(s []byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch c := s[i]; c {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b', 'f':
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(c - '0')
			for k := 0; k < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; k++ {
				i++
				v = v*8 + int(s[i]-'0')
			}
			b.WriteByte(byte(v))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
