// internal/autofill/verify.go
package autofill

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// verifyFieldsJS reports the value state of every rendered, non-button control.
const verifyFieldsJS = `(function() {
	const out = [];
	document.querySelectorAll('input, select, textarea').forEach(el => {
		const type = (el.type || '').toLowerCase();
		if (type === 'hidden' || type === 'button' || type === 'submit' || el.offsetParent === null) return;
		let label = '';
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) label = l.innerText.trim();
		}
		if (!label) {
			const wrap = el.closest('label');
			if (wrap) label = wrap.innerText.trim();
		}
		let value = el.value || '';
		if (type === 'checkbox' || type === 'radio') value = el.checked ? 'on' : '';
		out.push({
			id: el.id || '',
			name: el.getAttribute('name') || '',
			label: label,
			placeholder: el.getAttribute('placeholder') || '',
			value: value.trim(),
			required: el.required === true || el.getAttribute('aria-required') === 'true'
		});
	});
	return out;
})()`

// collectErrorsJS gathers candidate validation messages.
const collectErrorsJS = `(function() {
	const seen = new Set();
	const out = [];
	document.querySelectorAll('[class*="error"], [class*="invalid"], [role="alert"]').forEach(el => {
		if (seen.has(el)) return;
		seen.add(el);
		out.push({text: (el.innerText || '').trim(), visible: el.offsetParent !== null});
	});
	return out;
})()`

// fieldStatus is one control's state as seen by verification.
type fieldStatus struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
	Value       string `json:"value"`
	Required    bool   `json:"required"`
}

// DisplayLabel is the caption used in reports.
func (s fieldStatus) DisplayLabel() string {
	for _, v := range []string{s.Label, s.Placeholder, s.Name} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "unknown"
}

func (s fieldStatus) identity() schemas.ElementRef {
	switch {
	case s.ID != "":
		return schemas.ElementRef{Selector: s.ID, Kind: schemas.SelectorID}
	case s.Name != "":
		return schemas.ElementRef{Selector: s.Name, Kind: schemas.SelectorName}
	}
	return schemas.ElementRef{}
}

// Verify computes a fresh verification report. The empty-field statuses are
// returned alongside so gap filling can address them directly.
func (c *Controller) Verify(ctx context.Context) (schemas.VerificationReport, []fieldStatus, error) {
	var statuses []fieldStatus
	if err := c.page.Evaluate(ctx, verifyFieldsJS, &statuses); err != nil {
		return schemas.VerificationReport{}, nil, fmt.Errorf("verify fields: %w", err)
	}
	report, empty := buildReport(statuses)
	c.logger.Info("Form verified.", zap.Int("filled", len(report.Filled)), zap.Int("required_empty", len(report.Empty)))
	if len(report.Empty) > 0 {
		c.logger.Debug("Required fields still empty.", zap.Strings("labels", report.Empty))
	}
	return report, empty, nil
}

func buildReport(statuses []fieldStatus) (schemas.VerificationReport, []fieldStatus) {
	report := schemas.VerificationReport{Filled: []string{}, Empty: []string{}}
	var empty []fieldStatus
	for _, s := range statuses {
		switch {
		case s.Value != "":
			report.Filled = append(report.Filled, s.DisplayLabel())
		case s.Required:
			report.Empty = append(report.Empty, s.DisplayLabel())
			empty = append(empty, s)
		}
	}
	return report, empty
}

// FillGaps makes a best-effort pass over required-and-empty fields, limited to
// dropdowns, checkboxes and plain text inputs. Fields it cannot resolve are
// skipped. It returns how many fields it filled.
func (c *Controller) FillGaps(ctx context.Context, empty []fieldStatus) int {
	filled := 0
	for _, s := range empty {
		ref, st, ok := c.locateGap(ctx, s)
		if !ok {
			continue
		}
		if c.fillGap(ctx, ref, st, s) {
			filled++
		}
	}
	if filled > 0 {
		c.logger.Info("Gap filling completed.", zap.Int("filled", filled), zap.Int("candidates", len(empty)))
	}
	return filled
}

func (c *Controller) locateGap(ctx context.Context, s fieldStatus) (schemas.ElementRef, schemas.ElementState, bool) {
	if ref := s.identity(); !ref.IsZero() {
		if st, err := c.page.Inspect(ctx, ref); err == nil {
			return ref, st, true
		}
	}
	label := s.DisplayLabel()
	if label == "unknown" {
		return schemas.ElementRef{}, schemas.ElementState{}, false
	}
	for _, xp := range []string{
		fmt.Sprintf("//label[contains(normalize-space(.), %s)]/following::select[1]", schemas.XPathLiteral(label)),
		fmt.Sprintf("//label[contains(normalize-space(.), %s)]/following::input[1]", schemas.XPathLiteral(label)),
	} {
		refs, err := c.page.QueryVisible(ctx, xp)
		if err != nil || len(refs) == 0 {
			continue
		}
		if st, err := c.page.Inspect(ctx, refs[0]); err == nil {
			return refs[0], st, true
		}
	}
	return schemas.ElementRef{}, schemas.ElementState{}, false
}

func (c *Controller) fillGap(ctx context.Context, ref schemas.ElementRef, st schemas.ElementState, s fieldStatus) bool {
	label := s.DisplayLabel()
	mf := schemas.MappedField{FieldDescriptor: schemas.FieldDescriptor{Identity: ref, Label: label, WidgetType: st.Type}}
	if err := c.filler.prepare(ctx, ref); err != nil {
		return false
	}

	var err error
	switch class := classify(st, mf); class {
	case widgetNativeSelect:
		err = c.filler.selectNative(ctx, ref, "")
	case widgetCustomDropdown:
		err = c.filler.selectCustom(ctx, ref, "")
	case widgetCheckbox:
		err = c.filler.check(ctx, ref, st)
	case widgetText:
		switch strings.ToLower(st.Type) {
		case "", "text", "email", "tel":
			err = c.page.Type(ctx, ref, c.filler.fallback.Generate(label, st.Type))
		default:
			return false
		}
	default:
		return false
	}
	if err != nil {
		c.logger.Debug("Gap fill skipped field.", zap.String("label", label), zap.Error(err))
		return false
	}
	return true
}
