// internal/autofill/submission.go
package autofill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// State is a step of the per-page submission state machine.
type State string

const (
	StateLoaded    State = "LOADED"
	StateExtracted State = "EXTRACTED"
	StateMapped    State = "MAPPED"
	StateFilled    State = "FILLED"
	StateVerified  State = "VERIFIED"
	StateSubmitted State = "SUBMITTED"
	StateErrored   State = "ERRORED"
	StateDone      State = "DONE"
)

const (
	submitScrollWait = 2 * time.Second
	submitClickWait  = 3 * time.Second
	retryPreWait     = 2 * time.Second
	retryPostWait    = 3 * time.Second

	maxErrorLength      = 200
	maxErrorsPerAttempt = 5
	maxReportedErrors   = 10

	// MsgSubmitNotFound is recorded when no submit control could be clicked.
	MsgSubmitNotFound = "Could not find or click submit button"
)

var (
	successTextIndicators = []string{"thank you", "success", "submitted", "received", "confirmation"}
	successURLIndicators  = []string{"success", "confirmation", "thank"}
	genericSubmitXPaths   = []string{"//button[@type='submit']", "//input[@type='submit']"}
)

// SubmitGate is consulted once before the first submit click. Returning false
// leaves the form filled but unsubmitted.
type SubmitGate func(ctx context.Context, report schemas.VerificationReport) (bool, error)

// ControllerOptions configures the submission loop.
type ControllerOptions struct {
	MaxAttempts int
	Settle      time.Duration
	Gate        SubmitGate
}

// Controller verifies, gap-fills, submits and classifies the outcome.
type Controller struct {
	page   Page
	filler *Filler
	logger *zap.Logger
	opts   ControllerOptions
}

func NewController(page Page, filler *Filler, logger *zap.Logger, opts ControllerOptions) *Controller {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Settle <= 0 {
		opts.Settle = 4 * time.Second
	}
	return &Controller{page: page, filler: filler, logger: logger.Named("submission"), opts: opts}
}

// SubmitResult is the outcome of the submission loop.
type SubmitResult struct {
	Attempts  []schemas.SubmissionAttempt
	Submitted bool
	Success   bool
}

// Errors returns the unique error strings across attempts in first-seen order,
// capped at maxReportedErrors.
func (r SubmitResult) Errors() []string {
	var all []string
	for _, a := range r.Attempts {
		all = append(all, a.Errors...)
	}
	return dedupeCapped(all, maxReportedErrors)
}

// Submit runs the bounded submission loop. A missing submit control aborts at
// once with ErrSubmitControlNotFound. Explicit page errors are retried until
// the budget is spent, then reported with ErrSubmissionRejected. A click that
// shows neither success markers nor errors counts as success; keyword-based
// detection can misclassify, so this is a known source of false positives.
func (c *Controller) Submit(ctx context.Context, button schemas.ElementRef) (SubmitResult, error) {
	var res SubmitResult

	for i := 0; i < c.opts.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := c.logger.With(zap.Int("attempt", i+1), zap.Int("max_attempts", c.opts.MaxAttempts))

		if i == 0 {
			report, empty, err := c.Verify(ctx)
			if err != nil {
				log.Warn("Verification failed before submit.", zap.Error(err))
			} else if len(empty) > 0 {
				c.FillGaps(ctx, empty)
			}
			if c.opts.Gate != nil {
				proceed, err := c.opts.Gate(ctx, report)
				if err != nil {
					return res, fmt.Errorf("submit confirmation: %w", err)
				}
				if !proceed {
					log.Info("Submission declined; leaving form unsubmitted.")
					res.Success = true
					return res, nil
				}
			}
		}

		attempt := schemas.SubmissionAttempt{Index: i}
		attempt.Clicked = c.clickSubmit(ctx, button)
		if !attempt.Clicked {
			attempt.Errors = []string{MsgSubmitNotFound}
			res.Attempts = append(res.Attempts, attempt)
			log.Error("No submit control could be clicked; aborting.")
			return res, ErrSubmitControlNotFound
		}
		res.Submitted = true
		log.Info("Submit clicked.", zap.String("state", string(StateSubmitted)))

		if err := c.page.Sleep(ctx, c.opts.Settle); err != nil {
			return res, err
		}

		if indicator, ok := c.detectSuccess(ctx); ok {
			attempt.Success = true
			res.Attempts = append(res.Attempts, attempt)
			res.Success = true
			log.Info("Submission succeeded.", zap.String("indicator", indicator))
			return res, nil
		}

		attempt.Errors = c.collectErrors(ctx)
		res.Attempts = append(res.Attempts, attempt)
		if len(attempt.Errors) == 0 {
			res.Attempts[len(res.Attempts)-1].Success = true
			res.Success = true
			log.Info("No success marker and no errors after submit; treating as success.")
			return res, nil
		}

		log.Warn("Submission returned page errors.", zap.String("state", string(StateErrored)), zap.Strings("errors", attempt.Errors))
		if i == c.opts.MaxAttempts-1 {
			break
		}
		if err := c.prepareRetry(ctx); err != nil {
			return res, err
		}
	}

	return res, fmt.Errorf("%w after %d attempts", ErrSubmissionRejected, c.opts.MaxAttempts)
}

func (c *Controller) prepareRetry(ctx context.Context) error {
	if err := c.page.Sleep(ctx, retryPreWait); err != nil {
		return err
	}
	if _, empty, err := c.Verify(ctx); err == nil && len(empty) > 0 {
		c.FillGaps(ctx, empty)
	}
	return c.page.Sleep(ctx, retryPostWait)
}

// clickSubmit clicks the mapped submit control, falling back to the first
// visible generic submit button.
func (c *Controller) clickSubmit(ctx context.Context, button schemas.ElementRef) bool {
	if !button.IsZero() {
		if _, err := c.page.Inspect(ctx, button); err == nil {
			if c.clickWithSettle(ctx, button, submitScrollWait) {
				return true
			}
		} else {
			c.logger.Debug("Mapped submit button not found; trying generic controls.", zap.Stringer("identity", button))
		}
	}
	for _, xp := range genericSubmitXPaths {
		refs, err := c.page.QueryVisible(ctx, xp)
		if err != nil || len(refs) == 0 {
			continue
		}
		if c.clickWithSettle(ctx, refs[0], 0) {
			return true
		}
	}
	return false
}

func (c *Controller) clickWithSettle(ctx context.Context, ref schemas.ElementRef, scrollWait time.Duration) bool {
	_ = c.page.ScrollIntoView(ctx, ref)
	if scrollWait > 0 {
		if err := c.page.Sleep(ctx, scrollWait); err != nil {
			return false
		}
	}
	if err := c.page.Click(ctx, ref); err != nil {
		c.logger.Debug("Submit click failed.", zap.Stringer("ref", ref), zap.Error(err))
		return false
	}
	return c.page.Sleep(ctx, submitClickWait) == nil
}

// detectSuccess scans page text then URL for success markers. The first
// match wins.
func (c *Controller) detectSuccess(ctx context.Context) (string, bool) {
	if text, err := c.page.PageText(ctx); err == nil {
		if ind, ok := firstIndicator(text, successTextIndicators); ok {
			return ind, true
		}
	}
	if u, err := c.page.CurrentURL(ctx); err == nil {
		if ind, ok := firstIndicator(u, successURLIndicators); ok {
			return "url:" + ind, true
		}
	}
	return "", false
}

func firstIndicator(s string, indicators []string) (string, bool) {
	lower := strings.ToLower(s)
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			return ind, true
		}
	}
	return "", false
}

type pageError struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// collectErrors returns visible, non-empty validation messages, truncated and capped.
func (c *Controller) collectErrors(ctx context.Context) []string {
	var found []pageError
	if err := c.page.Evaluate(ctx, collectErrorsJS, &found); err != nil {
		c.logger.Debug("Error scan failed.", zap.Error(err))
		return nil
	}
	msgs := make([]string, 0, len(found))
	for _, e := range found {
		text := strings.TrimSpace(e.Text)
		if !e.Visible || text == "" {
			continue
		}
		if r := []rune(text); len(r) > maxErrorLength {
			text = string(r[:maxErrorLength])
		}
		msgs = append(msgs, text)
	}
	return dedupeCapped(msgs, maxErrorsPerAttempt)
}

func dedupeCapped(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
