// internal/autofill/filler.go
package autofill

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Settle periods between DOM-mutating actions. Sites attach handlers to focus
// and visibility, so these pauses are part of the interaction contract.
const (
	preInteractWait = 800 * time.Millisecond
	uploadSettle    = 2 * time.Second
	checkboxSettle  = 500 * time.Millisecond
	optionSettle    = time.Second
)

// widgetClass is the effective behavior of a live control.
type widgetClass int

const (
	widgetFile widgetClass = iota
	widgetNativeSelect
	widgetCustomDropdown
	widgetCheckbox
	widgetRadio
	widgetTextarea
	widgetText
	widgetOther
)

func (w widgetClass) String() string {
	return [...]string{"file", "native_select", "custom_dropdown", "checkbox", "radio", "textarea", "text", "other"}[w]
}

var textInputTypes = map[string]bool{
	"": true, "text": true, "email": true, "tel": true, "url": true, "number": true,
	"search": true, "password": true, "date": true, "month": true, "week": true, "time": true,
}

var popupValues = map[string]bool{"listbox": true, "menu": true, "true": true}

// classify decides the widget class from the live element first and the
// mapping second, since sites frequently mislabel roles.
func classify(st schemas.ElementState, f schemas.MappedField) widgetClass {
	tag := strings.ToLower(st.Tag)
	typ := strings.ToLower(st.Type)
	class := strings.ToLower(st.Class)
	toggle := tag == "input" && (typ == "checkbox" || typ == "radio")

	if typ == "file" || f.Action == schemas.ActionUpload || f.IsFile() {
		return widgetFile
	}
	if tag == "select" {
		return widgetNativeSelect
	}
	if !toggle && (strings.Contains(class, "select") ||
		strings.Contains(class, "dropdown") ||
		strings.EqualFold(st.Role, "combobox") ||
		popupValues[strings.ToLower(st.AriaHasPop)] ||
		(st.ReadOnly && st.AriaHasPop != "") ||
		f.Action == schemas.ActionSelect) {
		return widgetCustomDropdown
	}
	switch {
	case typ == "checkbox":
		return widgetCheckbox
	case typ == "radio":
		return widgetRadio
	case tag == "textarea":
		return widgetTextarea
	case tag == "input" && textInputTypes[typ]:
		return widgetText
	}
	return widgetOther
}

// FillerOptions bounds the filler's retry behavior.
type FillerOptions struct {
	MaxDropdownRounds int
	Fallback          *FallbackGenerator
}

// Filler executes the interaction for one mapped field at a time.
type Filler struct {
	page       Page
	logger     *zap.Logger
	fallback   *FallbackGenerator
	maxRounds  int
	strategies []openStrategy
}

func NewFiller(page Page, logger *zap.Logger, opts FillerOptions) *Filler {
	if opts.MaxDropdownRounds <= 0 {
		opts.MaxDropdownRounds = 5
	}
	if opts.Fallback == nil {
		opts.Fallback = NewFallbackGenerator(nil)
	}
	return &Filler{
		page:       page,
		logger:     logger.Named("filler"),
		fallback:   opts.Fallback,
		maxRounds:  opts.MaxDropdownRounds,
		strategies: defaultOpenStrategies(),
	}
}

// Fill performs the interaction for f and reports success. It never returns an
// error: failures are logged with their cause and reported as false.
func (fl *Filler) Fill(ctx context.Context, f schemas.MappedField) (ok bool) {
	log := fl.logger.With(
		zap.String("label", f.Label),
		zap.Stringer("identity", f.Identity),
		zap.String("action", string(f.Action)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while filling field.", zap.Any("panic", r))
			ok = false
		}
	}()

	class, err := fl.fill(ctx, f)
	if err != nil {
		log.Warn("Field fill failed.", zap.Stringer("widget", class), zap.Error(err))
		return false
	}
	log.Debug("Field filled.", zap.Stringer("widget", class))
	return true
}

func (fl *Filler) fill(ctx context.Context, f schemas.MappedField) (widgetClass, error) {
	ref, st, err := fl.locate(ctx, f)
	if err != nil {
		return widgetOther, err
	}
	if err := fl.prepare(ctx, ref); err != nil {
		return widgetOther, err
	}

	class := classify(st, f)
	switch class {
	case widgetFile:
		return class, fl.upload(ctx, ref, f.Value)
	case widgetNativeSelect:
		return class, fl.selectNative(ctx, ref, f.Value)
	case widgetCustomDropdown:
		return class, fl.selectCustom(ctx, ref, f.Value)
	case widgetCheckbox:
		return class, fl.check(ctx, ref, st)
	case widgetRadio:
		return class, fl.page.Click(ctx, ref)
	case widgetTextarea:
		return class, fl.page.Type(ctx, ref, orDefault(f.Value, DefaultInterestStatement))
	case widgetText:
		v := f.Value
		if strings.TrimSpace(v) == "" {
			v = fl.fallback.Generate(f.Label, st.Type)
		}
		return class, fl.page.Type(ctx, ref, v)
	default:
		return class, fl.page.Type(ctx, ref, orDefault(f.Value, genericValue))
	}
}

// prepare scrolls the element into view and waits for visibility handlers to run.
func (fl *Filler) prepare(ctx context.Context, ref schemas.ElementRef) error {
	if err := fl.page.ScrollIntoView(ctx, ref); err != nil {
		fl.logger.Debug("Scroll into view failed.", zap.Stringer("identity", ref), zap.Error(err))
	}
	return fl.page.Sleep(ctx, preInteractWait)
}

// locate resolves the field's identity, falling back to a label-based lookup
// (or any file input, for uploads).
func (fl *Filler) locate(ctx context.Context, f schemas.MappedField) (schemas.ElementRef, schemas.ElementState, error) {
	if !f.Identity.IsZero() {
		st, err := fl.page.Inspect(ctx, f.Identity)
		if err == nil {
			return f.Identity, st, nil
		}
		fl.logger.Debug("Identity did not resolve; trying heuristics.", zap.Stringer("identity", f.Identity), zap.Error(err))
	}

	for _, ref := range fl.heuristicCandidates(ctx, f) {
		st, err := fl.page.Inspect(ctx, ref)
		if err == nil {
			fl.logger.Debug("Resolved field heuristically.", zap.String("label", f.Label), zap.Stringer("ref", ref))
			return ref, st, nil
		}
	}
	return schemas.ElementRef{}, schemas.ElementState{}, fmt.Errorf("%w: %s (label %q)", ErrElementNotFound, f.Identity, f.Label)
}

func (fl *Filler) heuristicCandidates(ctx context.Context, f schemas.MappedField) []schemas.ElementRef {
	if f.IsFile() || f.Action == schemas.ActionUpload {
		if refs, err := fl.page.QueryVisible(ctx, fileInputXPath); err == nil && len(refs) > 0 {
			return refs[:1]
		}
		if refs, err := fl.page.Query(ctx, fileInputXPath); err == nil && len(refs) > 0 {
			return refs[:1]
		}
		return nil
	}
	if strings.TrimSpace(f.Label) == "" {
		return nil
	}
	refs, err := fl.page.QueryVisible(ctx, labelFollowingXPath(f.Label, true))
	if err != nil || len(refs) == 0 {
		return nil
	}
	return refs[:1]
}

const fileInputXPath = "//input[@type='file']"

// labelFollowingXPath finds the first control after a label containing text.
// withPlaceholder adds elements whose placeholder contains the text.
func labelFollowingXPath(text string, withPlaceholder bool) string {
	lit := schemas.XPathLiteral(strings.TrimSpace(text))
	label := fmt.Sprintf("//label[contains(normalize-space(.), %s)]", lit)
	parts := []string{
		label + "/following::input[1]",
		label + "/following::select[1]",
		label + "/following::textarea[1]",
	}
	if withPlaceholder {
		parts = append(parts, fmt.Sprintf("//*[contains(@placeholder, %s)]", lit))
	}
	return strings.Join(parts, " | ")
}

// upload sends a file to the input. Confirmation is best effort: when the
// input does not report a value, an adjacent button is clicked once and the
// file resent, and the upload is then treated as complete.
func (fl *Filler) upload(ctx context.Context, ref schemas.ElementRef, path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", ErrRelativePath, path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrUploadFileMissing, path)
	}

	if err := fl.page.SetFiles(ctx, ref, []string{path}); err != nil {
		return fmt.Errorf("set upload files: %w", err)
	}
	if err := fl.page.Sleep(ctx, uploadSettle); err != nil {
		return err
	}

	if st, err := fl.page.Inspect(ctx, ref); err == nil && st.Value != "" {
		fl.logger.Info("File uploaded.", zap.String("path", path))
		return nil
	}

	buttons, err := fl.page.QueryVisible(ctx, relative(ref, "/..//button")+" | "+relative(ref, "/..//a"))
	if err == nil && len(buttons) > 0 {
		if err := fl.page.Click(ctx, buttons[0]); err == nil {
			if err := fl.page.SetFiles(ctx, ref, []string{path}); err != nil {
				return fmt.Errorf("resend upload files: %w", err)
			}
			fl.logger.Info("File uploaded after clicking adjacent control.", zap.String("path", path))
			return nil
		}
	}

	fl.logger.Info("File sent; upload confirmation not observable.", zap.String("path", path))
	return nil
}

func (fl *Filler) check(ctx context.Context, ref schemas.ElementRef, st schemas.ElementState) error {
	if st.Checked {
		return nil
	}
	if err := fl.page.Click(ctx, ref); err != nil {
		return err
	}
	return fl.page.Sleep(ctx, checkboxSettle)
}

// selectNative picks an option of a <select> by display text.
func (fl *Filler) selectNative(ctx context.Context, ref schemas.ElementRef, value string) error {
	opts, err := fl.page.SelectOptions(ctx, ref)
	if err != nil {
		return fmt.Errorf("read select options: %w", err)
	}
	idx := chooseOption(opts, value)
	if idx < 0 {
		// A placeholder is only taken positionally when nothing was asked for.
		if strings.TrimSpace(value) != "" || len(opts) < 2 {
			return fmt.Errorf("select has no selectable option for %q", value)
		}
		idx = 1
	}
	if err := fl.page.SelectIndex(ctx, ref, idx); err != nil {
		return fmt.Errorf("select index %d: %w", idx, err)
	}
	fl.logger.Debug("Native option selected.", zap.String("target", value), zap.String("chosen", opts[idx].Text))
	return nil
}

var placeholderTexts = map[string]bool{"select...": true, "select": true, "choose": true, "--": true, "": true}

// IsPlaceholderOption reports whether an option's display text is a prompt
// rather than a real choice.
func IsPlaceholderOption(text string) bool {
	return placeholderTexts[strings.ToLower(strings.TrimSpace(text))]
}

// chooseOption applies the matching precedence: exact text (case-insensitive),
// exact value, substring in either direction, then the first real option.
// It returns -1 when every option is a placeholder.
func chooseOption(opts []schemas.Option, target string) int {
	t := strings.ToLower(strings.TrimSpace(target))
	if t != "" {
		for i, o := range opts {
			if !IsPlaceholderOption(o.Text) && strings.ToLower(strings.TrimSpace(o.Text)) == t {
				return i
			}
		}
		for i, o := range opts {
			if !IsPlaceholderOption(o.Text) && strings.EqualFold(strings.TrimSpace(o.Value), t) {
				return i
			}
		}
		for i, o := range opts {
			if IsPlaceholderOption(o.Text) {
				continue
			}
			text := strings.ToLower(strings.TrimSpace(o.Text))
			if strings.Contains(text, t) || strings.Contains(t, text) {
				return i
			}
		}
	}
	for i, o := range opts {
		if !IsPlaceholderOption(o.Text) {
			return i
		}
	}
	return -1
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
