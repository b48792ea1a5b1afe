// internal/browser/session/session.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/autofill"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const (
	defaultOpTimeout         = 10 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	closeWaitTimeout         = 10 * time.Second
)

var _ autofill.Page = (*Session)(nil)

// Session is one browser tab driven over CDP. Elements are addressed by XPath;
// element scripts resolve the node fresh on every call, so references survive
// re-renders as long as the expression still matches.
type Session struct {
	id      string
	logger  *zap.Logger
	network config.NetworkConfig

	// ctx carries the chromedp target for this tab.
	ctx    context.Context
	cancel context.CancelFunc

	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
	evalFunc       func(ctx context.Context, script string, out interface{}) error

	onClose func()
	closed  bool
	mu      sync.Mutex
}

func newSession(tabCtx context.Context, cancel context.CancelFunc, netCfg config.NetworkConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	s := &Session{
		id:      id,
		logger:  logger.Named("session").With(zap.String("session_id", id[:8])),
		network: netCfg,
		ctx:     tabCtx,
		cancel:  cancel,
	}
	s.runActionsFunc = chromedp.Run
	s.evalFunc = func(ctx context.Context, script string, out interface{}) error {
		return s.runActions(ctx, chromedp.Evaluate(script, out))
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// runActions executes actions on this tab, cancelled by either the tab or the caller.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return s.runActionsFunc(combined, actions...)
}

func (s *Session) opTimeout() time.Duration {
	if s.network.Timeout > 0 {
		return s.network.Timeout
	}
	return defaultOpTimeout
}

// Navigate loads url and waits for the body plus the configured settle period.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.network.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.network.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(s.network.PostLoadWait))
	}
	if err := s.runActions(navCtx, actions...); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := s.runActions(ctx, chromedp.Location(&u))
	return u, err
}

func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	err := s.evalFunc(ctx, pageTextJS, &text)
	return text, err
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Evaluate runs script and decodes its JSON result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	return s.evalFunc(opCtx, script, out)
}

// elementResult is the envelope every element script returns. A missing node
// is reported in-band rather than as a JS null.
type elementResult struct {
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value"`
}

// onElement resolves ref in the page and runs body with the node bound to el.
// body must return a JSON-serializable value.
func (s *Session) onElement(ctx context.Context, ref schemas.ElementRef, body string, out interface{}) error {
	script := fmt.Sprintf(elementEnvelopeJS, body, jsonEncode(ref.XPath()))
	var res elementResult
	if err := s.Evaluate(ctx, script, &res); err != nil {
		return fmt.Errorf("evaluate on %s: %w", ref, err)
	}
	if !res.Found {
		return fmt.Errorf("%w: %s", autofill.ErrElementNotFound, ref)
	}
	if out == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("decode result for %s: %w", ref, err)
	}
	return nil
}

func (s *Session) Inspect(ctx context.Context, ref schemas.ElementRef) (schemas.ElementState, error) {
	var st schemas.ElementState
	err := s.onElement(ctx, ref, inspectBody, &st)
	return st, err
}

func (s *Session) Text(ctx context.Context, ref schemas.ElementRef) (string, error) {
	var text string
	err := s.onElement(ctx, ref, textBody, &text)
	return text, err
}

func (s *Session) SelectOptions(ctx context.Context, ref schemas.ElementRef) ([]schemas.Option, error) {
	var opts []schemas.Option
	err := s.onElement(ctx, ref, optionsBody, &opts)
	return opts, err
}

func (s *Session) ScrollIntoView(ctx context.Context, ref schemas.ElementRef) error {
	return s.onElement(ctx, ref, scrollIntoViewBody, nil)
}

// Click performs a trusted mouse click at the node's center, falling back to a
// DOM click when the node has no box (zero-size proxies inside custom widgets).
func (s *Session) Click(ctx context.Context, ref schemas.ElementRef) error {
	if _, err := s.Inspect(ctx, ref); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	err := s.runActions(opCtx, chromedp.Click(ref.XPath(), chromedp.BySearch, chromedp.NodeVisible))
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Debug("Native click failed; using DOM click.", zap.Stringer("ref", ref), zap.Error(err))
	return s.onElement(ctx, ref, domClickBody, nil)
}

// Type replaces the control's content with text using key events.
func (s *Session) Type(ctx context.Context, ref schemas.ElementRef, text string) error {
	if err := s.onElement(ctx, ref, focusAndClearBody, nil); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	if err := s.runActions(opCtx, chromedp.SendKeys(ref.XPath(), text, chromedp.BySearch)); err != nil {
		return fmt.Errorf("type into %s: %w", ref, err)
	}
	return nil
}

func (s *Session) SelectIndex(ctx context.Context, ref schemas.ElementRef, index int) error {
	var ok bool
	if err := s.onElement(ctx, ref, fmt.Sprintf(selectIndexBody, index), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("option index %d out of range for %s", index, ref)
	}
	return nil
}

// SetFiles attaches local files to a file input, visible or not.
func (s *Session) SetFiles(ctx context.Context, ref schemas.ElementRef, paths []string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	if err := s.runActions(opCtx, chromedp.SetUploadFiles(ref.XPath(), paths, chromedp.BySearch)); err != nil {
		return fmt.Errorf("set files on %s: %w", ref, err)
	}
	return nil
}

// PressKey focuses the element and sends a single key.
func (s *Session) PressKey(ctx context.Context, ref schemas.ElementRef, key string) error {
	if err := s.onElement(ctx, ref, focusBody, nil); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	return s.runActions(opCtx, chromedp.KeyEvent(keyFor(key)))
}

// keyFor translates Page key names to the runes chromedp expects.
func keyFor(key string) string {
	switch key {
	case autofill.KeyEnter:
		return kb.Enter
	default:
		return key
	}
}

func (s *Session) DispatchPointer(ctx context.Context, ref schemas.ElementRef) error {
	return s.onElement(ctx, ref, pointerEventsBody, nil)
}

func (s *Session) Query(ctx context.Context, xpath string) ([]schemas.ElementRef, error) {
	return s.query(ctx, xpath, false)
}

func (s *Session) QueryVisible(ctx context.Context, xpath string) ([]schemas.ElementRef, error) {
	return s.query(ctx, xpath, true)
}

// query snapshots matches and returns positional references to them.
func (s *Session) query(ctx context.Context, xpath string, visibleOnly bool) ([]schemas.ElementRef, error) {
	var visible []bool
	if err := s.Evaluate(ctx, fmt.Sprintf(snapshotJS, jsonEncode(xpath)), &visible); err != nil {
		return nil, fmt.Errorf("query %q: %w", xpath, err)
	}
	return indexedRefs(xpath, visible, visibleOnly), nil
}

func indexedRefs(xpath string, visible []bool, visibleOnly bool) []schemas.ElementRef {
	refs := make([]schemas.ElementRef, 0, len(visible))
	for i, v := range visible {
		if visibleOnly && !v {
			continue
		}
		refs = append(refs, schemas.ElementRef{
			Selector: fmt.Sprintf("(%s)[%d]", xpath, i+1),
			Kind:     schemas.SelectorXPath,
		})
	}
	return refs
}

func (s *Session) ScrollTo(ctx context.Context, pos autofill.ScrollPosition) error {
	script := scrollTopJS
	if pos == autofill.ScrollBottom {
		script = scrollBottomJS
	}
	var ignored bool
	return s.Evaluate(ctx, script, &ignored)
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout())
	defer cancel()
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	})
	if err := s.runActions(opCtx, capture); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Sleep pauses for d, returning early if either the caller or the tab is cancelled.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return s.runActions(ctx, chromedp.Sleep(d))
}

// SetOnClose registers a callback that runs once when the session closes.
func (s *Session) SetOnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Close cancels the tab context and waits for chromedp to detach. Safe to call
// more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		defer onClose()
	}
	if s.cancel != nil {
		s.cancel()
	}

	waitCtx, cancel := context.WithTimeout(ctx, closeWaitTimeout)
	defer cancel()
	select {
	case <-s.ctx.Done():
		s.logger.Debug("Browser session closed.")
		return nil
	case <-waitCtx.Done():
		s.logger.Warn("Timed out waiting for browser session to close.", zap.Error(waitCtx.Err()))
		return waitCtx.Err()
	}
}

// jsonEncode quotes v as a JavaScript literal.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
