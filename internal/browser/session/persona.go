// internal/browser/session/persona.go
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
)

const defaultLocale = "en-US"

// personaScript runs before any page script. Some application portals refuse
// to render their forms when navigator.webdriver is set.
const personaScript = `(() => {
	Object.defineProperty(Navigator.prototype, 'webdriver', { get: () => undefined, configurable: true });
	const langs = %s;
	Object.defineProperty(Navigator.prototype, 'languages', { get: () => langs.slice(), configurable: true });
})();`

// Persona is the browser identity presented to every page in a tab.
type Persona struct {
	UserAgent string
	Languages []string
	Timezone  string
}

// PersonaFor derives the tab identity from the browser config.
func PersonaFor(cfg config.BrowserConfig) Persona {
	p := Persona{
		UserAgent: cfg.UserAgent,
		Timezone:  cfg.Timezone,
	}
	if p.UserAgent == "" {
		p.UserAgent = defaultUserAgent
	}
	locale := cfg.Locale
	if locale == "" {
		locale = defaultLocale
	}
	p.Languages = []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok && base != "" {
		p.Languages = append(p.Languages, base)
	}
	return p
}

// AcceptLanguage renders the languages with descending q weights.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

func (p Persona) script() string {
	quoted := make([]string, len(p.Languages))
	for i, lang := range p.Languages {
		quoted[i] = fmt.Sprintf("%q", lang)
	}
	return fmt.Sprintf(personaScript, "["+strings.Join(quoted, ",")+"]")
}

// Tasks applies the persona to the current tab. It must run before the first
// real navigation so the override script is registered for every document.
func (p Persona) Tasks(logger *zap.Logger) chromedp.Tasks {
	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).WithAcceptLanguage(p.AcceptLanguage()),
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": p.AcceptLanguage()}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(p.script()).Do(ctx)
			return err
		}),
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Languages[0]))
	}
	if p.Timezone != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if err := emulation.SetTimezoneOverride(p.Timezone).Do(ctx); err != nil {
				// An unknown zone id should not cost the run.
				logger.Warn("Timezone override rejected.", zap.String("timezone", p.Timezone), zap.Error(err))
			}
			return nil
		}))
	}
	return tasks
}
