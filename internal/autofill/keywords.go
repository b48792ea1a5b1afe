// internal/autofill/keywords.go
package autofill

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// keywordRule maps a field onto a profile value when its text matches.
// Confident rules identify the field unambiguously and bypass the model;
// the rest only supply a best-effort value for USE_MAPPER and gaps.
type keywordRule struct {
	name      string
	confident bool
	matches   func(text, label string) bool
	value     func(p *schemas.CandidateProfile) string
}

// phrases matches any of the given words or phrases on word boundaries, so
// "state" does not fire on "statement".
func phrases(words ...string) func(string, string) bool {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re := regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	return func(text, _ string) bool {
		return re.MatchString(text)
	}
}

// keywordRules are tried in order; the first match wins.
var keywordRules = []keywordRule{
	{"email", true, phrases("email", "e-mail"), func(p *schemas.CandidateProfile) string { return p.Personal.Email }},
	{"phone", true, phrases("phone", "telephone", "mobile"), func(p *schemas.CandidateProfile) string { return p.Personal.Phone }},
	{"first_name", true, phrases("first name", "given name"), func(p *schemas.CandidateProfile) string { return p.Personal.FirstName }},
	{"last_name", true, phrases("last name", "surname", "family name"), func(p *schemas.CandidateProfile) string { return p.Personal.LastName }},
	{"full_name", true, func(text, label string) bool {
		return strings.Contains(text, "full name") || label == "name"
	}, func(p *schemas.CandidateProfile) string { return p.Personal.FullName }},
	{"city", false, phrases("city"), func(p *schemas.CandidateProfile) string { return p.Personal.City }},
	{"state", false, phrases("state", "province"), func(p *schemas.CandidateProfile) string { return p.Personal.State }},
	{"country", false, phrases("country"), func(p *schemas.CandidateProfile) string { return p.Personal.Country }},
	{"company", false, phrases("company", "employer"), func(p *schemas.CandidateProfile) string {
		if p.Professional.CurrentCompany != "" {
			return p.Professional.CurrentCompany
		}
		if len(p.Experience) > 0 {
			return p.Experience[0].Company
		}
		return ""
	}},
	{"job_title", false, phrases("position", "job title"), func(p *schemas.CandidateProfile) string { return p.Professional.CurrentJobTitle }},
	{"institution", false, phrases("university", "college", "school"), func(p *schemas.CandidateProfile) string {
		if len(p.Education) > 0 {
			return p.Education[0].Institution
		}
		return ""
	}},
	{"degree", false, phrases("degree"), func(p *schemas.CandidateProfile) string {
		if len(p.Education) > 0 {
			return p.Education[0].Degree
		}
		return ""
	}},
	{"summary", false, phrases("summary", "about yourself", "about you"), func(p *schemas.CandidateProfile) string { return p.Professional.Summary }},
}

func matchRule(field schemas.FieldDescriptor) (keywordRule, bool) {
	label := strings.ToLower(strings.TrimSpace(field.Label))
	text := strings.ToLower(field.Label + " " + field.Placeholder)
	for _, r := range keywordRules {
		if r.matches(text, label) {
			return r, true
		}
	}
	return keywordRule{}, false
}

// KeywordMatch returns the profile value for a field and the name of the rule
// that produced it. ok is false when no rule matches.
func KeywordMatch(field schemas.FieldDescriptor, profile *schemas.CandidateProfile) (value, rule string, ok bool) {
	if profile == nil {
		return "", "", false
	}
	r, ok := matchRule(field)
	if !ok {
		return "", "", false
	}
	return r.value(profile), r.name, true
}

// KeywordConfident reports whether a confident rule resolves the field to a
// non-empty value, which makes asking the model unnecessary.
func KeywordConfident(field schemas.FieldDescriptor, profile *schemas.CandidateProfile) bool {
	if profile == nil {
		return false
	}
	r, ok := matchRule(field)
	return ok && r.confident && r.value(profile) != ""
}

// KeywordValue is KeywordMatch reduced to the best-effort value, possibly "".
func KeywordValue(field schemas.FieldDescriptor, profile *schemas.CandidateProfile) string {
	v, _, _ := KeywordMatch(field, profile)
	return v
}
