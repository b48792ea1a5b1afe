// api/schemas/fields.go
package schemas

import (
	"fmt"
	"strings"
)

// -- Form Field Schemas --

// FieldTag is the normalized element tag of a discovered form control.
type FieldTag string

const (
	TagInput    FieldTag = "input"
	TagSelect   FieldTag = "select"
	TagTextarea FieldTag = "textarea"
	TagCustom   FieldTag = "custom"
)

// SelectorKind identifies how an ElementRef selector should be interpreted.
type SelectorKind string

const (
	SelectorID    SelectorKind = "id"
	SelectorName  SelectorKind = "name"
	SelectorXPath SelectorKind = "xpath"
)

// FieldAction is the interaction a filler performs on a mapped field.
type FieldAction string

const (
	ActionType   FieldAction = "type"
	ActionSelect FieldAction = "select"
	ActionCheck  FieldAction = "check"
	ActionUpload FieldAction = "upload"
)

// ElementRef identifies a single live element on a page.
type ElementRef struct {
	Selector string       `json:"selector" yaml:"selector"`
	Kind     SelectorKind `json:"selector_type" yaml:"selector_type"`
}

// IsZero reports whether the reference carries no selector.
func (r ElementRef) IsZero() bool {
	return strings.TrimSpace(r.Selector) == ""
}

// XPath renders the reference as an XPath expression so that relative
// lookups (parent, nested icons) can be composed from it.
func (r ElementRef) XPath() string {
	switch r.Kind {
	case SelectorID:
		return fmt.Sprintf("//*[@id=%s]", XPathLiteral(r.Selector))
	case SelectorName:
		return fmt.Sprintf("(//*[@name=%s])[1]", XPathLiteral(r.Selector))
	default:
		return r.Selector
	}
}

func (r ElementRef) String() string {
	return fmt.Sprintf("%s=%s", r.Kind, r.Selector)
}

// XPathLiteral quotes s for use inside an XPath 1.0 expression. XPath has no
// escape sequences, so strings containing both quote styles need concat().
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Option is one entry of an enumerable widget.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// FieldDescriptor describes one visible, fillable control discovered on a page.
// Descriptors are rebuilt on every extraction pass.
type FieldDescriptor struct {
	Tag         FieldTag   `json:"tag"`
	WidgetType  string     `json:"type"`
	Identity    ElementRef `json:"identity"`
	Label       string     `json:"label"`
	Placeholder string     `json:"placeholder,omitempty"`
	Required    bool       `json:"required"`
	Role        string     `json:"role,omitempty"`
	Options     []Option   `json:"options,omitempty"`
}

// IsFile reports whether the control is a file input.
func (f FieldDescriptor) IsFile() bool {
	return strings.EqualFold(f.WidgetType, "file")
}

// MappedField is a descriptor with the value and action resolved for it.
type MappedField struct {
	FieldDescriptor
	Action FieldAction `json:"action"`
	Value  string      `json:"value"`
}

// FormMapping is the complete output of the field mapper for one page.
type FormMapping struct {
	Fields       []MappedField `json:"fields"`
	SubmitButton ElementRef    `json:"submit_button"`
}

// IsEmpty reports whether the mapping produced nothing to fill.
func (m FormMapping) IsEmpty() bool {
	return len(m.Fields) == 0
}

// ElementState is a snapshot of the attributes used to classify a live element.
type ElementState struct {
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Role        string `json:"role"`
	Class       string `json:"class"`
	ReadOnly    bool   `json:"readonly"`
	AriaHasPop  string `json:"ariaHasPopup"`
	Checked     bool   `json:"checked"`
	Value       string `json:"value"`
	Visible     bool   `json:"visible"`
	OptionCount int    `json:"optionCount"`
}
