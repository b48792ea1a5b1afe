// internal/resume/parser.go
package resume

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/llmutil"
)

// maxResumeChars bounds the resume text placed in the prompt.
const maxResumeChars = 10000

// ErrProfileIncomplete is returned when the model produced a profile without a name or email.
var ErrProfileIncomplete = errors.New("parsed profile is missing name and email")

const parseSystemPrompt = "You extract structured information from resumes. Always return valid JSON."

const parsePromptTemplate = `Extract the candidate's details from this resume. Return ONLY a JSON object with this shape:

{
  "personal_info": {"first_name": "", "last_name": "", "full_name": "", "email": "", "phone": "", "city": "", "state": "", "country": ""},
  "professional": {"current_company": "", "current_job_title": "", "summary": "2-3 sentences"},
  "education": [{"degree": "", "institution": "", "graduation_year": ""}],
  "work_experience": [{"company": "", "position": ""}]
}

Use empty strings for anything the resume does not state. List work experience newest first.

Resume:
%s`

// Parser converts resume text into a CandidateProfile with an LLM.
type Parser struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

func NewParser(llm schemas.LLMClient, logger *zap.Logger) *Parser {
	return &Parser{llm: llm, logger: logger.Named("resume_parser")}
}

// Parse asks the fast tier for the profile JSON and normalizes the result.
func (p *Parser) Parse(ctx context.Context, text string) (schemas.CandidateProfile, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return schemas.CandidateProfile{}, ErrNoText
	}
	if r := []rune(text); len(r) > maxResumeChars {
		text = string(r[:maxResumeChars])
	}

	resp, err := p.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: parseSystemPrompt,
		UserPrompt:   fmt.Sprintf(parsePromptTemplate, text),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.3,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.CandidateProfile{}, fmt.Errorf("resume parse request failed: %w", err)
	}

	profile, err := llmutil.ParseJSONResponse[schemas.CandidateProfile](resp)
	if err != nil {
		return schemas.CandidateProfile{}, fmt.Errorf("resume parse response invalid: %w", err)
	}
	profile.Normalize()
	if profile.Personal.FullName == "" && profile.Personal.Email == "" {
		return schemas.CandidateProfile{}, ErrProfileIncomplete
	}

	p.logger.Info("Parsed resume into profile.",
		zap.String("candidate", profile.Personal.FullName),
		zap.Int("education", len(profile.Education)),
		zap.Int("experience", len(profile.Experience)),
	)
	return *profile, nil
}
