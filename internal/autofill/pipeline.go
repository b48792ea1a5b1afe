// internal/autofill/pipeline.go
package autofill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const (
	postNavigateWait = 3 * time.Second
	closeTimeout     = 15 * time.Second
)

// RunnerOptions tunes one pipeline run.
type RunnerOptions struct {
	MaxSubmitAttempts int
	MaxDropdownRounds int
	SubmitSettle      time.Duration
	FieldGap          time.Duration
	AttachScreenshot  bool
	IndexPostings     bool
	Gate              SubmitGate
}

// Runner drives a single application end to end. Store, Index and Notifier
// are optional.
type Runner struct {
	Open     BrowserOpener
	LLM      schemas.LLMClient
	Notifier schemas.Notifier
	Store    schemas.Store
	Index    schemas.SearchIndex
	Options  RunnerOptions
	Logger   *zap.Logger
	Fallback *FallbackGenerator

	now func() time.Time
}

// ApplyRequest identifies the posting and the candidate.
type ApplyRequest struct {
	RunID   string
	JobURL  string
	Profile *schemas.CandidateProfile
	Docs    schemas.Documents
}

// runState accumulates what the run learned, whatever exit path it takes.
type runState struct {
	job        schemas.JobInfo
	report     schemas.ApplicationReport
	screenshot []byte
	state      State
}

// Run applies to req.JobURL. The browser page is released on every path. The
// returned report is always populated; the error is the page-level failure,
// if any.
func (r *Runner) Run(ctx context.Context, req ApplyRequest) (schemas.ApplicationReport, error) {
	now := r.now
	if now == nil {
		now = time.Now
	}
	log := r.Logger.Named("runner").With(zap.String("run_id", req.RunID), zap.String("job_url", req.JobURL))
	started := now()
	st := &runState{
		job:    schemas.JobInfo{Company: schemas.UnknownCompany, Position: schemas.UnknownPosition},
		report: schemas.ApplicationReport{Errors: []string{}},
	}

	err := r.run(ctx, req, st, log)
	if err != nil {
		log.Error("Application run failed.", zap.String("state", string(st.state)), zap.Error(err))
		if len(st.report.Errors) == 0 {
			st.report.Errors = []string{err.Error()}
		}
		st.report.Success = false
	} else {
		log.Info("Application run finished.",
			zap.Bool("success", st.report.Success),
			zap.Int("fields_filled", st.report.FieldsFilled),
			zap.Int("total_fields", st.report.TotalFields))
	}

	r.notify(ctx, req, st, log, now())
	r.persist(ctx, req, st, started, now(), log)
	return st.report, err
}

func (r *Runner) run(ctx context.Context, req ApplyRequest, st *runState, log *zap.Logger) error {
	if !filepath.IsAbs(req.Docs.ResumePath) {
		return fmt.Errorf("%w: %q", ErrRelativePath, req.Docs.ResumePath)
	}
	if _, err := os.Stat(req.Docs.ResumePath); err != nil {
		return fmt.Errorf("%w: %s", ErrResumeMissing, req.Docs.ResumePath)
	}

	page, err := r.Open(ctx)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := page.Close(closeCtx); err != nil {
			log.Warn("Failed to close browser page.", zap.Error(err))
		}
	}()
	defer func() {
		if r.Options.AttachScreenshot {
			if shot, err := page.Screenshot(ctx); err == nil {
				st.screenshot = shot
			}
		}
	}()

	return r.apply(ctx, page, req, st, log)
}

func (r *Runner) apply(ctx context.Context, page Page, req ApplyRequest, st *runState, log *zap.Logger) error {
	if err := page.Navigate(ctx, req.JobURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := page.Sleep(ctx, postNavigateWait); err != nil {
		return err
	}
	r.transition(st, StateLoaded, log)

	st.job = ExtractJobInfo(ctx, page, req.JobURL, log)
	log.Info("Job identified.", zap.String("company", st.job.Company), zap.String("position", st.job.Position))
	r.indexPosting(ctx, page, req.JobURL, st.job, log)
	ClickApply(ctx, page, log)

	fields, err := NewExtractor(r.Logger).Extract(ctx, page)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return ErrNoFormFound
	}
	st.report.TotalFields = len(fields)
	r.transition(st, StateExtracted, log)

	mapping, err := NewMapper(r.LLM, r.Logger).Map(ctx, fields, req.Profile, req.Docs)
	if err != nil {
		return err
	}
	st.report.TotalFields = len(mapping.Fields)
	r.transition(st, StateMapped, log)

	filler := NewFiller(page, r.Logger, FillerOptions{MaxDropdownRounds: r.Options.MaxDropdownRounds, Fallback: r.Fallback})
	for i, f := range mapping.Fields {
		ok := filler.Fill(ctx, f)
		if ok {
			st.report.FieldsFilled++
		}
		log.Info("Field processed.",
			zap.Int("n", i+1),
			zap.Int("of", len(mapping.Fields)),
			zap.String("label", f.Label),
			zap.Bool("filled", ok))
		if err := page.Sleep(ctx, r.Options.FieldGap); err != nil {
			return err
		}
	}
	r.transition(st, StateFilled, log)

	ctrl := NewController(page, filler, r.Logger, ControllerOptions{
		MaxAttempts: r.Options.MaxSubmitAttempts,
		Settle:      r.Options.SubmitSettle,
		Gate:        r.Options.Gate,
	})
	if _, _, err := ctrl.Verify(ctx); err != nil {
		log.Warn("Post-fill verification failed.", zap.Error(err))
	}
	r.transition(st, StateVerified, log)

	res, err := ctrl.Submit(ctx, mapping.SubmitButton)
	st.report.Attempts = res.Attempts
	st.report.Submitted = res.Submitted
	st.report.Success = res.Success && err == nil
	st.report.Errors = res.Errors()
	if err != nil {
		r.transition(st, StateErrored, log)
		return err
	}
	r.transition(st, StateDone, log)
	return nil
}

func (r *Runner) transition(st *runState, next State, log *zap.Logger) {
	log.Debug("State transition.", zap.String("from", string(st.state)), zap.String("to", string(next)))
	st.state = next
}

func (r *Runner) indexPosting(ctx context.Context, page Page, jobURL string, job schemas.JobInfo, log *zap.Logger) {
	if r.Index == nil || !r.Options.IndexPostings {
		return
	}
	html, err := page.HTML(ctx)
	if err != nil {
		log.Debug("Could not read posting HTML.", zap.Error(err))
		return
	}
	markdown, err := PostingMarkdown(html, jobURL)
	if err != nil {
		log.Debug("Could not convert posting to markdown.", zap.Error(err))
		return
	}
	posting := schemas.Posting{URL: jobURL, Company: job.Company, Position: job.Position, Markdown: markdown, CapturedAt: time.Now().UTC()}
	if err := r.Index.Index(ctx, posting); err != nil {
		log.Warn("Failed to index posting.", zap.Error(err))
	}
}

// notify delivers the terminal event. Delivery failures are logged only.
func (r *Runner) notify(ctx context.Context, req ApplyRequest, st *runState, log *zap.Logger, at time.Time) {
	if r.Notifier == nil {
		return
	}
	event := schemas.ApplicationEvent{
		RunID:      req.RunID,
		JobURL:     req.JobURL,
		Job:        st.job,
		Report:     st.report,
		Screenshot: st.screenshot,
		OccurredAt: at,
	}
	if err := r.Notifier.Send(ctx, event); err != nil {
		log.Warn("Notification delivery failed.", zap.Error(err))
	}
}

func (r *Runner) persist(ctx context.Context, req ApplyRequest, st *runState, started, finished time.Time, log *zap.Logger) {
	if r.Store == nil {
		return
	}
	rec := schemas.ApplicationRecord{
		ID:           req.RunID,
		JobURL:       req.JobURL,
		Company:      st.job.Company,
		Position:     st.job.Position,
		Status:       schemas.StatusFor(st.report),
		FieldsFilled: st.report.FieldsFilled,
		TotalFields:  st.report.TotalFields,
		Errors:       st.report.Errors,
		Attempts:     st.report.Attempts,
		StartedAt:    started,
		FinishedAt:   finished,
	}
	if err := r.Store.SaveApplication(ctx, rec); err != nil {
		log.Warn("Failed to persist application record.", zap.Error(err))
	}
}

// IsPageLevel reports whether err ended a run early rather than failing a single field.
func IsPageLevel(err error) bool {
	for _, target := range []error{ErrNoFormFound, ErrMappingParse, ErrSubmitControlNotFound, ErrResumeMissing} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
