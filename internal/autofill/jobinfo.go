// internal/autofill/jobinfo.go
package autofill

import (
	"context"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const jobInfoJS = `(function() {
	function firstText(selector) {
		for (const el of document.querySelectorAll(selector)) {
			const t = (el.innerText || '').trim();
			if (t) return t.split('\n')[0].trim();
		}
		return '';
	}
	return {
		company: firstText('[class*="company"], [id*="company"]'),
		position: firstText('h1') || firstText('[class*="job-title"], [class*="position"]')
	};
})()`

const (
	applyButtonXPath = "//button[contains(translate(normalize-space(.), 'APLY', 'aply'), 'apply')] | //a[contains(translate(normalize-space(.), 'APLY', 'aply'), 'apply')]"
	applyClickWait   = 3 * time.Second
	maxJobInfoLength = 120
)

// ExtractJobInfo scrapes the company and position from the posting, falling
// back to the greenhouse board slug and then to the unknown defaults.
func ExtractJobInfo(ctx context.Context, page Page, jobURL string, logger *zap.Logger) schemas.JobInfo {
	info := schemas.JobInfo{}
	if err := page.Evaluate(ctx, jobInfoJS, &info); err != nil {
		logger.Debug("Job info script failed.", zap.Error(err))
	}
	info.Company = clip(strings.TrimSpace(info.Company), maxJobInfoLength)
	info.Position = clip(strings.TrimSpace(info.Position), maxJobInfoLength)

	if info.Company == "" {
		info.Company = companyFromURL(jobURL)
	}
	if info.Company == "" {
		info.Company = schemas.UnknownCompany
	}
	if info.Position == "" {
		info.Position = schemas.UnknownPosition
	}
	return info
}

// companyFromURL derives a company name from a greenhouse board URL such as
// https://boards.greenhouse.io/acme-corp/jobs/123.
func companyFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Host), "greenhouse") {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(segments[0], "-", " "))
}

// ClickApply opens the application form when the posting hides it behind an
// apply button. It reports whether a button was clicked.
func ClickApply(ctx context.Context, page Page, logger *zap.Logger) bool {
	refs, err := page.QueryVisible(ctx, applyButtonXPath)
	if err != nil || len(refs) == 0 {
		logger.Debug("No apply button found; assuming the form is already on the page.")
		return false
	}
	_ = page.ScrollIntoView(ctx, refs[0])
	if err := page.Click(ctx, refs[0]); err != nil {
		logger.Debug("Apply button click failed.", zap.Error(err))
		return false
	}
	logger.Info("Clicked apply button.")
	_ = page.Sleep(ctx, applyClickWait)
	return true
}

// PostingMarkdown converts a posting page to Markdown for indexing.
func PostingMarkdown(html, pageURL string) (string, error) {
	conv := md.NewConverter(
		md.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return conv.ConvertString(html, md.WithDomain(pageURL))
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
