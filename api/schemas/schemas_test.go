package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "email", "'email'"},
		{"apostrophe", "Applicant's name", `"Applicant's name"`},
		{"both quotes", `it's "fine"`, `concat('it', "'", 's "fine"')`},
		{"leading apostrophe", `'a"`, `concat("'", 'a"')`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, XPathLiteral(tt.in))
		})
	}
}

func TestElementRef(t *testing.T) {
	t.Run("xpath by kind", func(t *testing.T) {
		assert.Equal(t, "//*[@id='first_name']", ElementRef{Selector: "first_name", Kind: SelectorID}.XPath())
		assert.Equal(t, "(//*[@name='job_application[email]'])[1]", ElementRef{Selector: "job_application[email]", Kind: SelectorName}.XPath())
		assert.Equal(t, "(//form//input)[3]", ElementRef{Selector: "(//form//input)[3]", Kind: SelectorXPath}.XPath())
	})

	t.Run("zero", func(t *testing.T) {
		assert.True(t, ElementRef{}.IsZero())
		assert.True(t, ElementRef{Selector: "  ", Kind: SelectorID}.IsZero())
		assert.False(t, ElementRef{Selector: "x", Kind: SelectorID}.IsZero())
	})

	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "id=email", ElementRef{Selector: "email", Kind: SelectorID}.String())
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusSubmitted, StatusFor(ApplicationReport{Success: true, Submitted: true}))
	assert.Equal(t, StatusDryRun, StatusFor(ApplicationReport{Success: true}))
	assert.Equal(t, StatusFailed, StatusFor(ApplicationReport{Submitted: true}))
	assert.Equal(t, StatusFailed, StatusFor(ApplicationReport{}))
}

func TestCandidateProfileNormalize(t *testing.T) {
	p := CandidateProfile{Personal: PersonalInfo{FirstName: " Ada ", LastName: "Lovelace ", Email: " ada@example.com"}}
	p.Normalize()
	assert.Equal(t, "Ada", p.Personal.FirstName)
	assert.Equal(t, "Lovelace", p.Personal.LastName)
	assert.Equal(t, "Ada Lovelace", p.Personal.FullName)
	assert.Equal(t, "ada@example.com", p.Personal.Email)

	named := CandidateProfile{Personal: PersonalInfo{FullName: "A. Lovelace", FirstName: "Ada"}}
	named.Normalize()
	assert.Equal(t, "A. Lovelace", named.Personal.FullName)
}

func TestSmallPredicates(t *testing.T) {
	assert.True(t, FieldDescriptor{WidgetType: "FILE"}.IsFile())
	assert.False(t, FieldDescriptor{WidgetType: "text"}.IsFile())
	assert.True(t, FormMapping{}.IsEmpty())
	assert.False(t, FormMapping{Fields: []MappedField{{}}}.IsEmpty())
	assert.False(t, Documents{ResumePath: "/r.pdf"}.HasCoverLetter())
	assert.True(t, Documents{ResumePath: "/r.pdf", CoverLetterPath: "/c.pdf"}.HasCoverLetter())
}
