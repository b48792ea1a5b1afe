package autofill

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func newTestFiller(t *testing.T, p *fakePage) *Filler {
	t.Helper()
	return NewFiller(p, zaptest.NewLogger(t), FillerOptions{
		MaxDropdownRounds: 5,
		Fallback:          NewFallbackGenerator(rand.New(rand.NewSource(7))),
	})
}

func mapped(ref schemas.ElementRef, label, widget string, action schemas.FieldAction, value string) schemas.MappedField {
	return schemas.MappedField{
		FieldDescriptor: schemas.FieldDescriptor{Identity: ref, Label: label, WidgetType: widget},
		Action:          action,
		Value:           value,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		state schemas.ElementState
		field schemas.MappedField
		want  widgetClass
	}{
		{"file input", schemas.ElementState{Tag: "input", Type: "file"}, schemas.MappedField{}, widgetFile},
		{"readonly text mapped as upload", schemas.ElementState{Tag: "input", Type: "text", ReadOnly: true}, schemas.MappedField{Action: schemas.ActionUpload}, widgetFile},
		{"native select", schemas.ElementState{Tag: "select"}, schemas.MappedField{}, widgetNativeSelect},
		{"combobox role", schemas.ElementState{Tag: "input", Type: "text", Role: "combobox"}, schemas.MappedField{}, widgetCustomDropdown},
		{"dropdown class", schemas.ElementState{Tag: "div", Class: "Select-control"}, schemas.MappedField{}, widgetCustomDropdown},
		{"haspopup listbox", schemas.ElementState{Tag: "input", Type: "text", AriaHasPop: "listbox"}, schemas.MappedField{}, widgetCustomDropdown},
		{"readonly with popup", schemas.ElementState{Tag: "input", Type: "text", ReadOnly: true, AriaHasPop: "dialog"}, schemas.MappedField{}, widgetCustomDropdown},
		{"mapped select action", schemas.ElementState{Tag: "input", Type: "text"}, schemas.MappedField{Action: schemas.ActionSelect}, widgetCustomDropdown},
		{"checkbox", schemas.ElementState{Tag: "input", Type: "checkbox"}, schemas.MappedField{}, widgetCheckbox},
		{"checkbox mapped as select stays checkbox", schemas.ElementState{Tag: "input", Type: "checkbox"}, schemas.MappedField{Action: schemas.ActionSelect}, widgetCheckbox},
		{"radio", schemas.ElementState{Tag: "input", Type: "radio"}, schemas.MappedField{}, widgetRadio},
		{"textarea", schemas.ElementState{Tag: "textarea"}, schemas.MappedField{}, widgetTextarea},
		{"email input", schemas.ElementState{Tag: "input", Type: "email"}, schemas.MappedField{}, widgetText},
		{"contenteditable div", schemas.ElementState{Tag: "div"}, schemas.MappedField{}, widgetOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.state, tt.field))
		})
	}
}

func TestChooseOption(t *testing.T) {
	opts := func(texts ...string) []schemas.Option {
		out := make([]schemas.Option, len(texts))
		for i, s := range texts {
			out[i] = schemas.Option{Value: s, Text: s}
		}
		return out
	}

	t.Run("usa picks united states, never the placeholder", func(t *testing.T) {
		assert.Equal(t, 1, chooseOption(opts("Select...", "United States", "Canada"), "usa"))
	})
	t.Run("exact match is case-insensitive", func(t *testing.T) {
		assert.Equal(t, 2, chooseOption(opts("Select...", "Yes", "No"), "NO"))
	})
	t.Run("exact beats substring", func(t *testing.T) {
		assert.Equal(t, 2, chooseOption(opts("--", "Not a US citizen", "US citizen"), "us citizen"))
	})
	t.Run("option text contains target", func(t *testing.T) {
		assert.Equal(t, 2, chooseOption(opts("Choose", "Ontario", "Canada (CA)"), "canada"))
	})
	t.Run("target contains option text", func(t *testing.T) {
		assert.Equal(t, 2, chooseOption(opts("Select", "Yes", "No"), "No, I do not need sponsorship"))
	})
	t.Run("option value match", func(t *testing.T) {
		o := []schemas.Option{{Value: "", Text: "Select..."}, {Value: "CA", Text: "Canada"}, {Value: "US", Text: "United States"}}
		assert.Equal(t, 2, chooseOption(o, "us"))
	})
	t.Run("empty target takes first real option", func(t *testing.T) {
		assert.Equal(t, 1, chooseOption(opts("", "Female", "Male"), ""))
	})
	t.Run("only placeholders", func(t *testing.T) {
		assert.Equal(t, -1, chooseOption(opts("Select...", "--", ""), "x"))
	})
}

func TestFillCheckboxIsIdempotent(t *testing.T) {
	ctx := context.Background()

	t.Run("already checked is left alone", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("terms"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "checkbox", Checked: true}})
		f := newTestFiller(t, p)

		assert.True(t, f.Fill(ctx, mapped(idRef("terms"), "I agree", "checkbox", schemas.ActionCheck, "true")))
		assert.Equal(t, 0, el.clicks)
		assert.True(t, el.state.Checked)
	})

	t.Run("unchecked is clicked once", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("terms"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "checkbox"}})
		f := newTestFiller(t, p)

		assert.True(t, f.Fill(ctx, mapped(idRef("terms"), "I agree", "checkbox", schemas.ActionCheck, "")))
		assert.Equal(t, 1, el.clicks)
		assert.True(t, el.state.Checked)
		assert.Equal(t, 1, p.sleepCount(checkboxSettle))
	})
}

func TestFillRadioAlwaysClicks(t *testing.T) {
	p := newFakePage()
	el := p.add(idRef("r1"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "radio", Checked: true}})
	f := newTestFiller(t, p)

	assert.True(t, f.Fill(context.Background(), mapped(idRef("r1"), "Yes", "radio", schemas.ActionCheck, "")))
	assert.Equal(t, 1, el.clicks)
}

func TestFillPacing(t *testing.T) {
	p := newFakePage()
	p.add(idRef("email"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "email"}})
	f := newTestFiller(t, p)

	require.True(t, f.Fill(context.Background(), mapped(idRef("email"), "Email", "email", schemas.ActionType, "a@b.com")))
	require.NotEmpty(t, p.calls)
	assert.Equal(t, "scroll:"+idRef("email").XPath(), p.calls[0], "element is scrolled into view before interaction")
	require.NotEmpty(t, p.sleeps)
	assert.Equal(t, preInteractWait, p.sleeps[0])
}

func TestFillTextDefaults(t *testing.T) {
	ctx := context.Background()

	t.Run("textarea without value gets interest statement", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("why"), &fakeElement{state: schemas.ElementState{Tag: "textarea"}})
		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("why"), "Why us?", "textarea", schemas.ActionType, "")))
		assert.Equal(t, DefaultInterestStatement, el.typed)
	})

	t.Run("text input without value gets fallback", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("alt_email"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "text"}})
		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("alt_email"), "Alternate Email", "text", schemas.ActionType, "")))
		assert.Regexp(t, `^test\d{4}@example\.com$`, el.typed)
	})

	t.Run("unknown widget still receives a value", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("rich"), &fakeElement{state: schemas.ElementState{Tag: "div"}})
		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("rich"), "Notes", "custom", schemas.ActionType, "")))
		assert.Equal(t, "Test", el.typed)
	})

	t.Run("provided value is typed as-is", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("city"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "text"}})
		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("city"), "City", "text", schemas.ActionType, "Lisbon")))
		assert.Equal(t, "Lisbon", el.typed)
	})
}

func TestFillElementResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to label lookup", func(t *testing.T) {
		p := newFakePage()
		found := xpathRef("(" + labelFollowingXPath("LinkedIn", true) + ")[1]")
		el := p.add(found, &fakeElement{state: schemas.ElementState{Tag: "input", Type: "url"}})
		p.queries[labelFollowingXPath("LinkedIn", true)] = []schemas.ElementRef{found}

		ok := newTestFiller(t, p).Fill(ctx, mapped(idRef("stale-id"), "LinkedIn", "url", schemas.ActionType, "https://linkedin.com/in/x"))
		assert.True(t, ok)
		assert.Equal(t, "https://linkedin.com/in/x", el.typed)
	})

	t.Run("nothing resolves", func(t *testing.T) {
		p := newFakePage()
		assert.False(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("ghost"), "Ghost", "text", schemas.ActionType, "x")))
	})

	t.Run("error is classified as element not found", func(t *testing.T) {
		p := newFakePage()
		_, err := newTestFiller(t, p).fill(ctx, mapped(idRef("ghost"), "Ghost", "text", schemas.ActionType, "x"))
		assert.ErrorIs(t, err, ErrElementNotFound)
	})
}

func TestFillNativeSelect(t *testing.T) {
	p := newFakePage()
	el := p.add(idRef("country"), &fakeElement{
		state:   schemas.ElementState{Tag: "select"},
		options: []schemas.Option{{Value: "", Text: "Select..."}, {Value: "us", Text: "United States"}, {Value: "ca", Text: "Canada"}},
	})

	assert.True(t, newTestFiller(t, p).Fill(context.Background(), mapped(idRef("country"), "Country", "select", schemas.ActionSelect, "Canada")))
	assert.Equal(t, 2, el.selected)

	t.Run("only a placeholder and one unusable option falls back to index 1", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("x"), &fakeElement{
			state:   schemas.ElementState{Tag: "select"},
			options: []schemas.Option{{Text: "Select..."}, {Text: "--"}},
		})
		assert.True(t, newTestFiller(t, p).Fill(context.Background(), mapped(idRef("x"), "X", "select", schemas.ActionSelect, "")))
		assert.Equal(t, 1, el.selected)
	})

	t.Run("a requested value never lands on a placeholder", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("x"), &fakeElement{
			state:    schemas.ElementState{Tag: "select"},
			options:  []schemas.Option{{Text: "Select..."}, {Text: "--"}},
			selected: -1,
		})
		assert.False(t, newTestFiller(t, p).Fill(context.Background(), mapped(idRef("x"), "X", "select", schemas.ActionSelect, "Canada")))
		assert.Equal(t, -1, el.selected)
	})
}

func TestFillUpload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	resume := filepath.Join(dir, "resume.pdf")
	require.NoError(t, os.WriteFile(resume, []byte("%PDF-1.4"), 0o600))

	t.Run("missing file fails", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("resume"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "file"}})
		f := newTestFiller(t, p)

		missing := filepath.Join(dir, "nope.pdf")
		assert.False(t, f.Fill(ctx, mapped(idRef("resume"), "Resume", "file", schemas.ActionUpload, missing)))
		assert.Empty(t, el.files)

		_, err := f.fill(ctx, mapped(idRef("resume"), "Resume", "file", schemas.ActionUpload, missing))
		assert.ErrorIs(t, err, ErrUploadFileMissing)
	})

	t.Run("confirmed upload", func(t *testing.T) {
		p := newFakePage()
		el := p.add(idRef("resume"), &fakeElement{
			state:   schemas.ElementState{Tag: "input", Type: "file"},
			onFiles: func(el *fakeElement) { el.state.Value = `C:\fakepath\resume.pdf` },
		})
		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("resume"), "Resume", "file", schemas.ActionUpload, resume)))
		require.Len(t, el.files, 1)
		assert.Equal(t, []string{resume}, el.files[0])
		assert.Equal(t, 1, p.sleepCount(uploadSettle))
	})

	t.Run("unconfirmed upload clicks adjacent button and resends", func(t *testing.T) {
		p := newFakePage()
		ref := idRef("resume")
		el := p.add(ref, &fakeElement{state: schemas.ElementState{Tag: "input", Type: "file"}})
		btn := xpathRef("(" + relative(ref, "/..//button") + " | " + relative(ref, "/..//a") + ")[1]")
		btnEl := p.add(btn, &fakeElement{state: schemas.ElementState{Tag: "button"}})
		p.queries[relative(ref, "/..//button")+" | "+relative(ref, "/..//a")] = []schemas.ElementRef{btn}

		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(ref, "Resume", "file", schemas.ActionUpload, resume)))
		assert.Equal(t, 1, btnEl.clicks)
		assert.Len(t, el.files, 2)
	})

	t.Run("unconfirmed upload with nothing to click is still reported done", func(t *testing.T) {
		p := newFakePage()
		p.add(idRef("resume"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "file"}})
		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("resume"), "Resume", "file", schemas.ActionUpload, resume)))
	})

	t.Run("stale identity falls back to hidden file input", func(t *testing.T) {
		p := newFakePage()
		hidden := xpathRef("(" + fileInputXPath + ")[1]")
		el := p.add(hidden, &fakeElement{state: schemas.ElementState{Tag: "input", Type: "file"}})
		p.allQuery[fileInputXPath] = []schemas.ElementRef{hidden}

		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(idRef("gone"), "Attach resume", "file", schemas.ActionUpload, resume)))
		assert.Len(t, el.files, 1)
	})

	t.Run("relative path is rejected", func(t *testing.T) {
		p := newFakePage()
		p.add(idRef("resume"), &fakeElement{state: schemas.ElementState{Tag: "input", Type: "file"}})
		_, err := newTestFiller(t, p).fill(ctx, mapped(idRef("resume"), "Resume", "file", schemas.ActionUpload, "resume.pdf"))
		assert.ErrorIs(t, err, ErrRelativePath)
	})
}

func TestCustomDropdown(t *testing.T) {
	ctx := context.Background()
	ref := idRef("visa")

	t.Run("never opens: exactly max rounds of every strategy, then false", func(t *testing.T) {
		p := newFakePage()
		p.add(ref, &fakeElement{state: schemas.ElementState{Tag: "div", Role: "combobox"}})
		parent := p.add(xpathRef(relative(ref, "/..")), &fakeElement{state: schemas.ElementState{Tag: "div"}})
		iconsXPath := relative(ref, "/..//*[contains(@class,'arrow') or contains(@class,'icon') or local-name()='svg']")
		icon := p.add(xpathRef("("+iconsXPath+")[1]"), &fakeElement{state: schemas.ElementState{Tag: "svg"}})
		p.queries[iconsXPath] = []schemas.ElementRef{xpathRef("(" + iconsXPath + ")[1]")}

		f := newTestFiller(t, p)
		assert.False(t, f.Fill(ctx, mapped(ref, "Visa Sponsorship?", "combobox", schemas.ActionSelect, "No")))

		assert.Equal(t, 5, p.elements[ref.XPath()].clicks, "direct click once per round")
		assert.Equal(t, 5, parent.clicks, "parent click once per round")
		assert.Equal(t, 5, icon.clicks, "icon click once per round")
		assert.Equal(t, 5, p.count("key: "), "space once per round")
		assert.Equal(t, 5, p.count("key:Enter"), "enter once per round")
		assert.Equal(t, 5, p.count("pointer:"+ref.XPath()), "pointer events once per round")
		assert.Equal(t, 25, p.count("query:"+visibleOptionsXPath), "options polled after every strategy")
		assert.Equal(t, 10, p.sleepCount(keySettle))
		// Four two-second strategy settles per round, plus a gap between rounds.
		require.Equal(t, strategySettle, roundGap)
		assert.Equal(t, 5*4+4, p.sleepCount(roundGap))

		_, err := f.fill(ctx, mapped(ref, "Visa Sponsorship?", "combobox", schemas.ActionSelect, "No"))
		assert.ErrorIs(t, err, ErrDropdownOpen)
	})

	t.Run("first revealing strategy wins", func(t *testing.T) {
		p := newFakePage()
		control := p.add(ref, &fakeElement{state: schemas.ElementState{Tag: "div", Class: "dropdown"}})
		parent := p.add(xpathRef(relative(ref, "/..")), &fakeElement{
			state:   schemas.ElementState{Tag: "div"},
			onClick: func(p *fakePage) { p.optionsOpen = true },
		})
		yes := p.add(xpathRef("(//*[@role='option' or @role='listitem'])[1]"), &fakeElement{text: "Yes"})
		no := p.add(xpathRef("(//*[@role='option' or @role='listitem'])[2]"), &fakeElement{text: "No"})
		p.optionRefs = []schemas.ElementRef{
			xpathRef("(//*[@role='option' or @role='listitem'])[1]"),
			xpathRef("(//*[@role='option' or @role='listitem'])[2]"),
		}

		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(ref, "Visa Sponsorship?", "combobox", schemas.ActionSelect, "no")))
		assert.Equal(t, 1, control.clicks)
		assert.Equal(t, 1, parent.clicks)
		assert.Equal(t, 0, p.count("key: "), "later strategies are not tried")
		assert.Equal(t, 0, yes.clicks)
		assert.Equal(t, 1, no.clicks)
		assert.Equal(t, 1, p.sleepCount(optionSettle))
	})

	t.Run("failing strategy is skipped", func(t *testing.T) {
		p := newFakePage()
		p.add(ref, &fakeElement{
			state:    schemas.ElementState{Tag: "input", Type: "text", AriaHasPop: "listbox"},
			clickErr: errors.New("not clickable"),
		})
		opt := xpathRef("(//*[@role='option' or @role='listitem'])[1]")
		optEl := p.add(opt, &fakeElement{text: "Remote"})
		p.optionRefs = []schemas.ElementRef{opt}
		p.add(xpathRef(relative(ref, "/..")), &fakeElement{
			state:   schemas.ElementState{Tag: "div"},
			onClick: func(p *fakePage) { p.optionsOpen = true },
		})

		assert.True(t, newTestFiller(t, p).Fill(ctx, mapped(ref, "Work location", "text", schemas.ActionSelect, "")))
		assert.Equal(t, 1, optEl.clicks)
	})
}

func TestCustomDropdownLogsIconClickFailure(t *testing.T) {
	ref := idRef("visa")
	p := newFakePage()
	p.add(ref, &fakeElement{state: schemas.ElementState{Tag: "div", Role: "combobox"}})
	p.add(xpathRef(relative(ref, "/..")), &fakeElement{state: schemas.ElementState{Tag: "div"}})
	iconsXPath := relative(ref, "/..//*[contains(@class,'arrow') or contains(@class,'icon') or local-name()='svg']")
	iconRef := xpathRef("(" + iconsXPath + ")[1]")
	p.add(iconRef, &fakeElement{state: schemas.ElementState{Tag: "svg"}, clickErr: errors.New("node detached")})
	p.queries[iconsXPath] = []schemas.ElementRef{iconRef}

	core, logs := observer.New(zapcore.DebugLevel)
	f := NewFiller(p, zap.New(core), FillerOptions{
		MaxDropdownRounds: 1,
		Fallback:          NewFallbackGenerator(rand.New(rand.NewSource(7))),
	})
	assert.False(t, f.Fill(context.Background(), mapped(ref, "Visa Sponsorship?", "combobox", schemas.ActionSelect, "No")))

	failed := logs.FilterMessage("Dropdown icon click failed.").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "node detached", failed[0].ContextMap()["error"])
	// The remaining strategies still ran after the failed icon click.
	assert.Equal(t, 1, p.count("pointer:"+ref.XPath()))
}

func TestFillRecoversFromPanic(t *testing.T) {
	p := newFakePage()
	p.add(idRef("boom"), &fakeElement{
		state:   schemas.ElementState{Tag: "input", Type: "radio"},
		onClick: func(*fakePage) { panic("site script exploded") },
	})
	assert.False(t, newTestFiller(t, p).Fill(context.Background(), mapped(idRef("boom"), "Boom", "radio", schemas.ActionCheck, "")))
}
