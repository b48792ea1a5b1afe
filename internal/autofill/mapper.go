// internal/autofill/mapper.go
package autofill

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/llmutil"
)

// Sentinel values the model may emit in place of a literal value.
const (
	MarkerUseMapper   = "USE_MAPPER"
	MarkerResumeFile  = "RESUME_FILE"
	MarkerCoverLetter = "COVER_LETTER_FILE"
)

const mappingSystemPrompt = "You map candidate resume data onto job application form fields. Respond with a single JSON object and nothing else."

// llmMapping is the structure the model is asked to return.
type llmMapping struct {
	Fields       []llmField `json:"fields"`
	SubmitButton llmRef     `json:"submit_button"`
}

type llmField struct {
	Selector     string     `json:"selector"`
	SelectorType string     `json:"selector_type"`
	FieldType    string     `json:"field_type"`
	Label        string     `json:"label"`
	Value        flexString `json:"value"`
	Action       string     `json:"action"`
}

type llmRef struct {
	Selector     string `json:"selector"`
	SelectorType string `json:"selector_type"`
}

// flexString accepts a JSON string, number, bool or null. Models are not
// consistent about quoting checkbox and numeric answers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		*f = ""
		return nil
	}
	*f = flexString(fmt.Sprint(v))
	return nil
}

// Mapper resolves a value and action for every extracted field.
type Mapper struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

func NewMapper(llm schemas.LLMClient, logger *zap.Logger) *Mapper {
	return &Mapper{llm: llm, logger: logger.Named("mapper")}
}

// Map produces the form mapping. Fields the keyword rules resolve with a value
// are mapped directly; the rest are delegated to the model. The output keeps
// extraction order. An unparseable model response yields an empty mapping and
// ErrMappingParse.
func (m *Mapper) Map(ctx context.Context, fields []schemas.FieldDescriptor, profile *schemas.CandidateProfile, docs schemas.Documents) (schemas.FormMapping, error) {
	if len(fields) == 0 {
		return schemas.FormMapping{}, ErrNoFormFound
	}
	if !filepath.IsAbs(docs.ResumePath) || (docs.HasCoverLetter() && !filepath.IsAbs(docs.CoverLetterPath)) {
		return schemas.FormMapping{}, ErrRelativePath
	}

	confident := make([]bool, len(fields))
	needModel := false
	for i, f := range fields {
		confident[i] = m.resolvedByKeywords(f, profile)
		if !confident[i] {
			needModel = true
		}
	}

	var resp *llmMapping
	if needModel {
		var err error
		if resp, err = m.askModel(ctx, fields, profile); err != nil {
			m.logger.Error("LLM mapping failed.", zap.Error(err))
			return schemas.FormMapping{}, fmt.Errorf("%w: %v", ErrMappingParse, err)
		}
	} else {
		m.logger.Info("All fields resolved by keyword rules; skipping LLM.")
		resp = &llmMapping{}
	}

	mapping := m.merge(fields, confident, resp, profile)
	for i := range mapping.Fields {
		if err := finalizeField(&mapping.Fields[i], docs, profile); err != nil {
			return schemas.FormMapping{}, err
		}
	}

	m.logger.Info("Form mapped.",
		zap.Int("fields", len(mapping.Fields)),
		zap.Bool("llm_used", needModel),
		zap.String("submit_button", mapping.SubmitButton.Selector))
	return mapping, nil
}

// resolvedByKeywords reports whether a field can be filled from the keyword
// rules alone. Uploads, enumerable widgets and loosely matched questions
// always go to the model.
func (m *Mapper) resolvedByKeywords(f schemas.FieldDescriptor, profile *schemas.CandidateProfile) bool {
	if f.IsFile() || len(f.Options) > 0 || deriveAction(f) != schemas.ActionType {
		return false
	}
	return KeywordConfident(f, profile)
}

func (m *Mapper) askModel(ctx context.Context, fields []schemas.FieldDescriptor, profile *schemas.CandidateProfile) (*llmMapping, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: mappingSystemPrompt,
		UserPrompt:   BuildMappingPrompt(fields, profile),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	}
	raw, err := m.llm.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm generate: %w", err)
	}
	parsed, err := llmutil.ParseJSONResponse[llmMapping](raw)
	if err != nil {
		return nil, err
	}
	if len(parsed.Fields) == 0 {
		return nil, fmt.Errorf("response enumerated no fields")
	}
	return parsed, nil
}

// merge joins model entries to extracted fields by selector. Extracted order
// comes first; model entries matching no extracted field follow in model order.
func (m *Mapper) merge(fields []schemas.FieldDescriptor, confident []bool, resp *llmMapping, profile *schemas.CandidateProfile) schemas.FormMapping {
	bySelector := make(map[string]int, len(resp.Fields))
	for i, lf := range resp.Fields {
		if _, dup := bySelector[lf.Selector]; !dup {
			bySelector[lf.Selector] = i
		}
	}
	used := make([]bool, len(resp.Fields))

	out := schemas.FormMapping{Fields: make([]schemas.MappedField, 0, len(fields))}
	for i, f := range fields {
		mf := schemas.MappedField{FieldDescriptor: f, Action: deriveAction(f)}
		idx, found := bySelector[f.Identity.Selector]
		if found {
			used[idx] = true
		}
		switch {
		case confident[i]:
			mf.Value = KeywordValue(f, profile)
		case found:
			lf := resp.Fields[idx]
			mf.Value = string(lf.Value)
			if a, ok := parseAction(lf.Action); ok {
				mf.Action = a
			}
		default:
			mf.Value = KeywordValue(f, profile)
		}
		out.Fields = append(out.Fields, mf)
	}

	for i, lf := range resp.Fields {
		if used[i] || strings.TrimSpace(lf.Selector) == "" {
			continue
		}
		fd := schemas.FieldDescriptor{
			Tag:        schemas.TagCustom,
			WidgetType: strings.ToLower(lf.FieldType),
			Identity:   schemas.ElementRef{Selector: lf.Selector, Kind: parseKind(lf.SelectorType, lf.Selector)},
			Label:      lf.Label,
		}
		mf := schemas.MappedField{FieldDescriptor: fd, Action: deriveAction(fd), Value: string(lf.Value)}
		if a, ok := parseAction(lf.Action); ok {
			mf.Action = a
		}
		m.logger.Debug("Model mapped a field extraction did not report.", zap.String("selector", lf.Selector))
		out.Fields = append(out.Fields, mf)
	}

	if s := strings.TrimSpace(resp.SubmitButton.Selector); s != "" {
		out.SubmitButton = schemas.ElementRef{Selector: s, Kind: parseKind(resp.SubmitButton.SelectorType, s)}
	}
	return out
}

// finalizeField replaces sentinels so no marker reaches the filler.
func finalizeField(mf *schemas.MappedField, docs schemas.Documents, profile *schemas.CandidateProfile) error {
	if mf.Value == MarkerUseMapper {
		mf.Value = KeywordValue(mf.FieldDescriptor, profile)
	}
	if mf.IsFile() || mf.Value == MarkerResumeFile || mf.Value == MarkerCoverLetter {
		mf.Action = schemas.ActionUpload
	}
	if mf.Action != schemas.ActionUpload {
		return nil
	}
	path, err := ResolveUploadPath(mf.Label, mf.Value, docs)
	if err != nil {
		return err
	}
	mf.Value = path
	return nil
}

// ResolveUploadPath chooses the document for an upload field. The resume is
// the default; the cover letter is used when one exists and either the model
// asked for it or the label names it.
func ResolveUploadPath(label, value string, docs schemas.Documents) (string, error) {
	l := strings.ToLower(label)
	choice := docs.ResumePath
	switch {
	case value == MarkerResumeFile || strings.Contains(l, "resume"):
	case value == MarkerCoverLetter && docs.HasCoverLetter():
		choice = docs.CoverLetterPath
	case (strings.Contains(l, "cover") || strings.Contains(l, "letter")) && docs.HasCoverLetter():
		choice = docs.CoverLetterPath
	}
	abs, err := filepath.Abs(choice)
	if err != nil {
		return "", fmt.Errorf("resolve upload path %q: %w", choice, err)
	}
	return abs, nil
}

// deriveAction infers the interaction from the extracted control.
func deriveAction(f schemas.FieldDescriptor) schemas.FieldAction {
	wt := strings.ToLower(f.WidgetType)
	switch {
	case wt == "file":
		return schemas.ActionUpload
	case wt == "checkbox" || wt == "radio":
		return schemas.ActionCheck
	case f.Tag == schemas.TagSelect || strings.HasPrefix(wt, "select") || wt == "combobox" || wt == "listbox" || f.Role == "combobox":
		return schemas.ActionSelect
	default:
		return schemas.ActionType
	}
}

func parseAction(s string) (schemas.FieldAction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "type", "fill", "input":
		return schemas.ActionType, true
	case "select", "choose":
		return schemas.ActionSelect, true
	case "check", "click":
		return schemas.ActionCheck, true
	case "upload":
		return schemas.ActionUpload, true
	default:
		return "", false
	}
}

func parseKind(kind, selector string) schemas.SelectorKind {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "id":
		return schemas.SelectorID
	case "name":
		return schemas.SelectorName
	case "xpath":
		return schemas.SelectorXPath
	}
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(") {
		return schemas.SelectorXPath
	}
	return schemas.SelectorID
}

// FormatFieldsForLLM renders one line per field in extraction order.
func FormatFieldsForLLM(fields []schemas.FieldDescriptor) string {
	var b strings.Builder
	for _, f := range fields {
		id := "N/A"
		if f.Identity.Selector != "" {
			id = f.Identity.Selector
		}
		fmt.Fprintf(&b, "FIELD: %s (Type: %s, ID: %s", f.Label, f.WidgetType, id)
		if f.Identity.Kind != schemas.SelectorID {
			fmt.Fprintf(&b, ", SelectorType: %s", f.Identity.Kind)
		}
		if f.Required {
			b.WriteString(", Required")
		}
		b.WriteString(")")
		if len(f.Options) > 0 {
			texts := make([]string, 0, len(f.Options))
			for _, o := range f.Options {
				texts = append(texts, o.Text)
			}
			fmt.Fprintf(&b, " OPTIONS: [%s]", strings.Join(texts, " | "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BuildMappingPrompt assembles the user prompt for the mapping call.
func BuildMappingPrompt(fields []schemas.FieldDescriptor, profile *schemas.CandidateProfile) string {
	var p schemas.CandidateProfile
	if profile != nil {
		p = *profile
	}
	var b strings.Builder
	b.WriteString("Map resume to form. Include ALL fields including checkboxes/dropdowns/file uploads.\n\n")
	fmt.Fprintf(&b, "RESUME:\nName: %s\nEmail: %s\nPhone: %s\n", p.Personal.FullName, p.Personal.Email, p.Personal.Phone)
	if loc := strings.Trim(strings.Join([]string{p.Personal.City, p.Personal.State, p.Personal.Country}, ", "), ", "); loc != "" {
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	if p.Professional.CurrentJobTitle != "" {
		fmt.Fprintf(&b, "Current role: %s at %s\n", p.Professional.CurrentJobTitle, p.Professional.CurrentCompany)
	}
	b.WriteString("\nFORM:\n")
	b.WriteString(FormatFieldsForLLM(fields))
	fmt.Fprintf(&b, `
RULES:
- For file upload fields use action "upload" and value %q, or %q when the field asks for a cover letter.
- For dropdowns use action "select" and a value copied from the listed OPTIONS.
- For checkboxes and radios use action "check".
- If unsure of a text value use %q.
- Keep "selector" exactly as the ID shown, with "selector_type" "id", "name" or "xpath".

Return JSON:
{"fields":[{"selector":"","selector_type":"id","field_type":"","label":"","value":"","action":"type"}],"submit_button":{"selector":"","selector_type":"id"}}
`, MarkerResumeFile, MarkerCoverLetter, MarkerUseMapper)
	return b.String()
}
