// api/schemas/profile.go
package schemas

import "strings"

// CandidateProfile is the normalized resume data the pipeline fills forms from.
// The pipeline treats it as read-only.
type CandidateProfile struct {
	Personal     PersonalInfo     `json:"personal_info" yaml:"personal_info"`
	Professional ProfessionalInfo `json:"professional" yaml:"professional"`
	Education    []Education      `json:"education" yaml:"education"`
	Experience   []Experience     `json:"work_experience" yaml:"work_experience"`
}

type PersonalInfo struct {
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	FullName  string `json:"full_name" yaml:"full_name"`
	Email     string `json:"email" yaml:"email"`
	Phone     string `json:"phone" yaml:"phone"`
	City      string `json:"city" yaml:"city"`
	State     string `json:"state" yaml:"state"`
	Country   string `json:"country" yaml:"country"`
}

type ProfessionalInfo struct {
	CurrentCompany  string `json:"current_company" yaml:"current_company"`
	CurrentJobTitle string `json:"current_job_title" yaml:"current_job_title"`
	Summary         string `json:"summary" yaml:"summary"`
}

type Education struct {
	Degree         string `json:"degree" yaml:"degree"`
	Institution    string `json:"institution" yaml:"institution"`
	GraduationYear string `json:"graduation_year" yaml:"graduation_year"`
}

type Experience struct {
	Company  string `json:"company" yaml:"company"`
	Position string `json:"position" yaml:"position"`
}

// Normalize fills derivable fields and trims whitespace.
func (p *CandidateProfile) Normalize() {
	p.Personal.FirstName = strings.TrimSpace(p.Personal.FirstName)
	p.Personal.LastName = strings.TrimSpace(p.Personal.LastName)
	p.Personal.Email = strings.TrimSpace(p.Personal.Email)
	if strings.TrimSpace(p.Personal.FullName) == "" {
		p.Personal.FullName = strings.TrimSpace(p.Personal.FirstName + " " + p.Personal.LastName)
	}
}

// Documents holds absolute paths to the files offered for upload fields.
type Documents struct {
	ResumePath      string `json:"resume_path"`
	CoverLetterPath string `json:"cover_letter_path,omitempty"`
}

// HasCoverLetter reports whether a cover letter was supplied.
func (d Documents) HasCoverLetter() bool {
	return d.CoverLetterPath != ""
}
