// internal/autofill/extractor.go
package autofill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// extractFieldsJS walks every form plus controls outside any form and returns
// one record per control. Records carry a visible flag; filtering happens in Go.
const extractFieldsJS = `(function() {
	const fillable = 'input, select, textarea, [role="combobox"], [role="listbox"]';
	const skipTypes = ['submit', 'button', 'reset', 'image'];
	const seen = new Set();
	const out = [];

	function xpathOf(el) {
		const parts = [];
		for (let n = el; n && n.nodeType === 1; n = n.parentNode) {
			let i = 1;
			for (let s = n.previousElementSibling; s; s = s.previousElementSibling) {
				if (s.nodeName === n.nodeName) i++;
			}
			parts.unshift(n.nodeName.toLowerCase() + '[' + i + ']');
		}
		return '/' + parts.join('/');
	}

	function labelOf(el) {
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l && l.innerText.trim()) return l.innerText.trim();
		}
		const wrap = el.closest('label');
		if (wrap && wrap.innerText.trim()) return wrap.innerText.trim();
		const aria = el.getAttribute('aria-label');
		if (aria && aria.trim()) return aria.trim();
		return el.getAttribute('placeholder') || '';
	}

	function record(el) {
		if (seen.has(el)) return;
		seen.add(el);
		const tag = el.tagName.toLowerCase();
		const type = (el.getAttribute('type') || (tag === 'select' ? 'select' : tag === 'textarea' ? 'textarea' : tag === 'input' ? 'text' : el.getAttribute('role') || 'custom')).toLowerCase();
		if (tag === 'input' && skipTypes.includes(type)) return;
		const rec = {
			tag: tag,
			type: type,
			id: el.id || '',
			name: el.getAttribute('name') || '',
			placeholder: el.getAttribute('placeholder') || '',
			required: el.required === true || el.getAttribute('aria-required') === 'true',
			role: el.getAttribute('role') || '',
			label: labelOf(el),
			hidden: type === 'hidden',
			visible: el.offsetParent !== null,
			xpath: xpathOf(el),
			options: []
		};
		if (tag === 'select') {
			rec.options = Array.from(el.options).map(o => ({value: o.value, text: o.text.trim()}));
		}
		out.push(rec);
	}

	document.querySelectorAll('form').forEach(f => f.querySelectorAll(fillable).forEach(record));
	document.querySelectorAll(fillable).forEach(el => { if (!el.closest('form')) record(el); });
	return out;
})()`

// countVisibleInputsJS counts rendered controls, used to decide whether lazy content needs loading.
const countVisibleInputsJS = `(function() {
	return Array.from(document.querySelectorAll('input, select, textarea')).filter(el => el.offsetParent !== null).length;
})()`

// rawField is the record shape produced by extractFieldsJS.
type rawField struct {
	Tag         string           `json:"tag"`
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Placeholder string           `json:"placeholder"`
	Required    bool             `json:"required"`
	Role        string           `json:"role"`
	Label       string           `json:"label"`
	Hidden      bool             `json:"hidden"`
	Visible     bool             `json:"visible"`
	XPath       string           `json:"xpath"`
	Options     []schemas.Option `json:"options"`
}

// Loading thresholds for the scroll-and-rescan pass.
const (
	enoughVisibleFields = 5
	stableVisibleFields = 10
	maxLoadScrolls      = 3
	loadScrollWait      = time.Second
)

// Extractor discovers the visible fillable controls on a page.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

// LoadForm scrolls to trigger lazily rendered fields, then restores the
// viewport to the top so later lookups see a stable layout.
func (e *Extractor) LoadForm(ctx context.Context, page Page) error {
	visible, err := e.countVisible(ctx, page)
	if err != nil {
		return err
	}
	e.logger.Debug("Initial visible inputs.", zap.Int("count", visible))
	if visible >= enoughVisibleFields {
		return nil
	}

	for i := 0; i < maxLoadScrolls; i++ {
		if err := page.ScrollTo(ctx, ScrollBottom); err != nil {
			return fmt.Errorf("scroll to bottom: %w", err)
		}
		if err := page.Sleep(ctx, loadScrollWait); err != nil {
			return err
		}
		if visible, err = e.countVisible(ctx, page); err != nil {
			return err
		}
		e.logger.Debug("Visible inputs after scroll.", zap.Int("attempt", i+1), zap.Int("count", visible))
		if visible >= stableVisibleFields {
			break
		}
	}

	if err := page.ScrollTo(ctx, ScrollTop); err != nil {
		return fmt.Errorf("scroll to top: %w", err)
	}
	return page.Sleep(ctx, loadScrollWait)
}

func (e *Extractor) countVisible(ctx context.Context, page Page) (int, error) {
	var n int
	if err := page.Evaluate(ctx, countVisibleInputsJS, &n); err != nil {
		return 0, fmt.Errorf("count visible inputs: %w", err)
	}
	return n, nil
}

// Extract loads the form and returns descriptors for every visible control, in
// document order. An empty result means there is no form on the page.
func (e *Extractor) Extract(ctx context.Context, page Page) ([]schemas.FieldDescriptor, error) {
	if err := e.LoadForm(ctx, page); err != nil {
		// Extraction proceeds against whatever has rendered.
		e.logger.Warn("Form loading pass failed.", zap.Error(err))
	}

	var raw []rawField
	if err := page.Evaluate(ctx, extractFieldsJS, &raw); err != nil {
		return nil, fmt.Errorf("extract form structure: %w", err)
	}

	fields := normalizeFields(raw)
	e.logger.Info("Form structure extracted.", zap.Int("raw", len(raw)), zap.Int("visible", len(fields)))
	return fields, nil
}

// normalizeFields drops hidden and unrendered controls and assigns each
// remaining control its identity: id, else a name no other control shares,
// else positional xpath. Radio groups share a name, so their members end up
// addressed by xpath.
func normalizeFields(raw []rawField) []schemas.FieldDescriptor {
	names := make(map[string]int, len(raw))
	for _, r := range raw {
		if r.Name != "" {
			names[r.Name]++
		}
	}

	fields := make([]schemas.FieldDescriptor, 0, len(raw))
	for _, r := range raw {
		if r.Hidden || strings.EqualFold(r.Type, "hidden") || !r.Visible {
			continue
		}

		var ident schemas.ElementRef
		switch {
		case r.ID != "":
			ident = schemas.ElementRef{Selector: r.ID, Kind: schemas.SelectorID}
		case r.Name != "" && names[r.Name] == 1:
			ident = schemas.ElementRef{Selector: r.Name, Kind: schemas.SelectorName}
		case r.XPath != "":
			ident = xpathRef(r.XPath)
		case r.Name != "":
			ident = schemas.ElementRef{Selector: r.Name, Kind: schemas.SelectorName}
		default:
			continue
		}

		fd := schemas.FieldDescriptor{
			Tag:         tagOf(r),
			WidgetType:  strings.ToLower(r.Type),
			Identity:    ident,
			Label:       strings.TrimSpace(r.Label),
			Placeholder: r.Placeholder,
			Required:    r.Required,
			Role:        r.Role,
		}
		if fd.Tag == schemas.TagSelect && len(r.Options) > 0 {
			fd.Options = r.Options
		}
		fields = append(fields, fd)
	}
	return fields
}

func tagOf(r rawField) schemas.FieldTag {
	switch strings.ToLower(r.Tag) {
	case "input":
		return schemas.TagInput
	case "select":
		return schemas.TagSelect
	case "textarea":
		return schemas.TagTextarea
	default:
		return schemas.TagCustom
	}
}
