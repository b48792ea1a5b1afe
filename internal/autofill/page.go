// internal/autofill/page.go
package autofill

import (
	"context"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// ScrollPosition is a vertical scroll target.
type ScrollPosition string

const (
	ScrollTop    ScrollPosition = "top"
	ScrollBottom ScrollPosition = "bottom"
)

// Key names understood by Page.PressKey.
const (
	KeySpace = " "
	KeyEnter = "Enter"
)

// Page is the browser surface the engine drives. Element arguments are
// references produced by extraction or by Query/QueryVisible.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageText(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// Evaluate runs a script that returns a JSON-serializable value and decodes it into out.
	Evaluate(ctx context.Context, script string, out interface{}) error

	Inspect(ctx context.Context, ref schemas.ElementRef) (schemas.ElementState, error)
	Text(ctx context.Context, ref schemas.ElementRef) (string, error)
	SelectOptions(ctx context.Context, ref schemas.ElementRef) ([]schemas.Option, error)

	ScrollIntoView(ctx context.Context, ref schemas.ElementRef) error
	Click(ctx context.Context, ref schemas.ElementRef) error
	Type(ctx context.Context, ref schemas.ElementRef, text string) error
	SelectIndex(ctx context.Context, ref schemas.ElementRef, index int) error
	SetFiles(ctx context.Context, ref schemas.ElementRef, paths []string) error
	PressKey(ctx context.Context, ref schemas.ElementRef, key string) error
	// DispatchPointer fires synthesized mousedown and click events on the element.
	DispatchPointer(ctx context.Context, ref schemas.ElementRef) error

	// Query returns every element matching xpath, visible or not.
	Query(ctx context.Context, xpath string) ([]schemas.ElementRef, error)
	// QueryVisible returns only matches that are rendered.
	QueryVisible(ctx context.Context, xpath string) ([]schemas.ElementRef, error)

	ScrollTo(ctx context.Context, pos ScrollPosition) error
	Screenshot(ctx context.Context) ([]byte, error)
	Sleep(ctx context.Context, d time.Duration) error
	Close(ctx context.Context) error
}

// BrowserOpener acquires a fresh page. The caller owns the page and must close it.
type BrowserOpener func(ctx context.Context) (Page, error)

// relative composes an XPath step onto ref, e.g. relative(ref, "/..").
func relative(ref schemas.ElementRef, path string) string {
	return "(" + ref.XPath() + ")" + path
}

func xpathRef(xpath string) schemas.ElementRef {
	return schemas.ElementRef{Selector: xpath, Kind: schemas.SelectorXPath}
}
