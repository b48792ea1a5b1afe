package autofill

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// fakeElement is an in-memory stand-in for a live DOM node.
type fakeElement struct {
	state    schemas.ElementState
	options  []schemas.Option
	text     string
	selected int
	typed    string
	files    [][]string
	clicks   int
	onClick  func(p *fakePage)
	onFiles  func(el *fakeElement)
	clickErr error
}

// fakePage implements Page over a map of elements keyed by their XPath.
type fakePage struct {
	mu sync.Mutex

	elements map[string]*fakeElement
	queries  map[string][]schemas.ElementRef
	allQuery map[string][]schemas.ElementRef
	evals    map[string]func() interface{}

	optionRefs  []schemas.ElementRef
	optionsOpen bool

	url, text, html string

	calls     []string
	sleeps    []time.Duration
	navigated []string
	closed    bool
}

func newFakePage() *fakePage {
	return &fakePage{
		elements: map[string]*fakeElement{},
		queries:  map[string][]schemas.ElementRef{},
		allQuery: map[string][]schemas.ElementRef{},
		evals:    map[string]func() interface{}{},
	}
}

func (p *fakePage) add(ref schemas.ElementRef, el *fakeElement) *fakeElement {
	el.state.Visible = true
	p.elements[ref.XPath()] = el
	return el
}

func (p *fakePage) setEval(script string, v interface{}) {
	p.evals[script] = func() interface{} { return v }
}

func (p *fakePage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) count(call string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (p *fakePage) lookup(ref schemas.ElementRef) (*fakeElement, error) {
	el, ok := p.elements[ref.XPath()]
	if !ok {
		return nil, fmt.Errorf("no node for %s", ref)
	}
	return el, nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	if p.url == "" {
		p.url = url
	}
	return nil
}

func (p *fakePage) CurrentURL(context.Context) (string, error) { return p.url, nil }
func (p *fakePage) PageText(context.Context) (string, error)   { return p.text, nil }
func (p *fakePage) HTML(context.Context) (string, error)       { return p.html, nil }

func (p *fakePage) Evaluate(_ context.Context, script string, out interface{}) error {
	p.mu.Lock()
	fn, ok := p.evals[script]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unexpected script")
	}
	b, err := json.Marshal(fn())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (p *fakePage) Inspect(_ context.Context, ref schemas.ElementRef) (schemas.ElementState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.lookup(ref)
	if err != nil {
		return schemas.ElementState{}, err
	}
	return el.state, nil
}

func (p *fakePage) Text(_ context.Context, ref schemas.ElementRef) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.lookup(ref)
	if err != nil {
		return "", err
	}
	return el.text, nil
}

func (p *fakePage) SelectOptions(_ context.Context, ref schemas.ElementRef) ([]schemas.Option, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.lookup(ref)
	if err != nil {
		return nil, err
	}
	return el.options, nil
}

func (p *fakePage) ScrollIntoView(_ context.Context, ref schemas.ElementRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scroll:%s", ref.XPath())
	return nil
}

func (p *fakePage) Click(_ context.Context, ref schemas.ElementRef) error {
	p.mu.Lock()
	p.record("click:%s", ref.XPath())
	el, err := p.lookup(ref)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if el.clickErr != nil {
		p.mu.Unlock()
		return el.clickErr
	}
	el.clicks++
	if el.state.Type == "checkbox" || el.state.Type == "radio" {
		el.state.Checked = el.state.Type == "radio" || !el.state.Checked
	}
	hook := el.onClick
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) Type(_ context.Context, ref schemas.ElementRef, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("type:%s", ref.XPath())
	el, err := p.lookup(ref)
	if err != nil {
		return err
	}
	el.typed = text
	el.state.Value = text
	return nil
}

func (p *fakePage) SelectIndex(_ context.Context, ref schemas.ElementRef, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.lookup(ref)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(el.options) {
		return fmt.Errorf("index %d out of range", index)
	}
	el.selected = index
	el.state.Value = el.options[index].Value
	return nil
}

func (p *fakePage) SetFiles(_ context.Context, ref schemas.ElementRef, paths []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("files:%s", ref.XPath())
	el, err := p.lookup(ref)
	if err != nil {
		return err
	}
	el.files = append(el.files, paths)
	if el.onFiles != nil {
		el.onFiles(el)
	}
	return nil
}

func (p *fakePage) PressKey(_ context.Context, ref schemas.ElementRef, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("key:%s", key)
	_, err := p.lookup(ref)
	return err
}

func (p *fakePage) DispatchPointer(_ context.Context, ref schemas.ElementRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("pointer:%s", ref.XPath())
	_, err := p.lookup(ref)
	return err
}

func (p *fakePage) Query(_ context.Context, xpath string) ([]schemas.ElementRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if refs, ok := p.allQuery[xpath]; ok {
		return refs, nil
	}
	return p.queries[xpath], nil
}

func (p *fakePage) QueryVisible(_ context.Context, xpath string) ([]schemas.ElementRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("query:%s", xpath)
	if xpath == visibleOptionsXPath {
		if p.optionsOpen {
			return p.optionRefs, nil
		}
		return nil, nil
	}
	return p.queries[xpath], nil
}

func (p *fakePage) ScrollTo(_ context.Context, pos ScrollPosition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scrollto:%s", pos)
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.sleeps = append(p.sleeps, d)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *fakePage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// sleepCount returns how many pauses of exactly d were taken.
func (p *fakePage) sleepCount(d time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

// fakeLLM returns canned responses and records prompts.
type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []schemas.GenerationRequest
}

func (f *fakeLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req)
	return f.response, f.err
}

func (f *fakeLLM) Close() error { return nil }

// recordingNotifier captures delivered events.
type recordingNotifier struct {
	events []schemas.ApplicationEvent
	err    error
}

func (n *recordingNotifier) Send(_ context.Context, e schemas.ApplicationEvent) error {
	n.events = append(n.events, e)
	return n.err
}

func idRef(id string) schemas.ElementRef {
	return schemas.ElementRef{Selector: id, Kind: schemas.SelectorID}
}
