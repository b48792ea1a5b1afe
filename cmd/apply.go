// cmd/apply.go
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/autofill"
	"github.com/xkilldash9x/formpilot/internal/browser/session"
	"github.com/xkilldash9x/formpilot/internal/llmclient"
	"github.com/xkilldash9x/formpilot/internal/notify"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/resume"
	"github.com/xkilldash9x/formpilot/internal/store"
)

const (
	promptYes       = "Yes, submit"
	promptNo        = "No, stop before submitting"
	shutdownTimeout = 30 * time.Second
)

var errNotSubmitted = errors.New("application was not submitted")

type applyOptions struct {
	resumePath  string
	coverLetter string
	profilePath string
	confirm     bool
	noStore     bool
}

// profileParser turns resume text into a candidate profile.
type profileParser interface {
	Parse(ctx context.Context, text string) (schemas.CandidateProfile, error)
}

// confirmFunc asks the user whether to submit. It is swapped out in tests.
var confirmFunc = promptConfirm

func newApplyCmd(a *app) *cobra.Command {
	opts := &applyOptions{}
	cmd := &cobra.Command{
		Use:   "apply <job-url>",
		Short: "Fill in and submit the application form at a job posting URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runApply(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.resumePath, "resume", "r", "", "resume file to upload and read (pdf, docx, txt, md)")
	cmd.Flags().StringVar(&opts.coverLetter, "cover-letter", "", "cover letter file offered to cover letter upload fields")
	cmd.Flags().StringVarP(&opts.profilePath, "profile", "p", "", "candidate profile (yaml or json); parsed from the resume when omitted")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "ask before clicking submit")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not record the run or index the posting")
	_ = cmd.MarkFlagRequired("resume")
	return cmd
}

func (a *app) runApply(cmd *cobra.Command, jobURL string, opts *applyOptions) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	cfg := a.cfg

	docs, err := resolveDocuments(opts.resumePath, opts.coverLetter)
	if err != nil {
		return err
	}

	llm, err := llmclient.NewClient(ctx, cfg.LLM(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	defer llm.Close()

	profile, err := prepareProfile(ctx, opts.profilePath, docs, resume.NewParser(llm, logger))
	if err != nil {
		return err
	}

	notifier, err := notify.New(cfg.Notify(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	af := cfg.Autofill()
	runner := &autofill.Runner{
		LLM:      llm,
		Notifier: notifier,
		Logger:   logger,
		Fallback: autofill.NewFallbackGenerator(nil),
		Options: autofill.RunnerOptions{
			MaxSubmitAttempts: af.MaxSubmitAttempts,
			MaxDropdownRounds: af.MaxDropdownRounds,
			SubmitSettle:      af.SubmitSettle,
			FieldGap:          af.FieldGap,
			AttachScreenshot:  cfg.Notify().AttachScreenshot,
			IndexPostings:     af.IndexPostings,
		},
	}
	if opts.confirm {
		runner.Options.Gate = submitGate(confirmFunc)
	}

	if !opts.noStore {
		backend, err := store.Open(ctx, cfg.Database(), logger)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer backend.Close()
		runner.Store = backend
		runner.Index = backend
	}

	mgr, err := session.NewManager(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown failed.", zap.Error(err))
		}
	}()
	runner.Open = mgr.Open

	runID := uuid.NewString()
	logger.Info("Starting application run.", zap.String("run_id", runID), zap.String("job_url", jobURL))
	report, runErr := runner.Run(ctx, autofill.ApplyRequest{
		RunID:   runID,
		JobURL:  jobURL,
		Profile: &profile,
		Docs:    docs,
	})

	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("application run failed: %w", runErr)
	}
	if !report.Success {
		return errNotSubmitted
	}
	return nil
}

// resolveDocuments makes the document paths absolute and checks the resume exists.
func resolveDocuments(resumePath, coverLetter string) (schemas.Documents, error) {
	var docs schemas.Documents
	abs, err := filepath.Abs(resumePath)
	if err != nil {
		return docs, fmt.Errorf("resolve resume path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return docs, fmt.Errorf("%w: %s", autofill.ErrResumeMissing, abs)
	}
	docs.ResumePath = abs

	if coverLetter != "" {
		if docs.CoverLetterPath, err = filepath.Abs(coverLetter); err != nil {
			return docs, fmt.Errorf("resolve cover letter path: %w", err)
		}
	}
	return docs, nil
}

// prepareProfile loads the profile file, or parses the resume when none is
// given, while the cover letter is checked alongside.
func prepareProfile(ctx context.Context, profilePath string, docs schemas.Documents, parser profileParser) (schemas.CandidateProfile, error) {
	var profile schemas.CandidateProfile
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if profilePath != "" {
			p, err := resume.LoadProfile(profilePath)
			if err != nil {
				return err
			}
			profile = p
			return nil
		}
		text, err := resume.ExtractText(docs.ResumePath)
		if err != nil {
			return fmt.Errorf("read resume: %w", err)
		}
		p, err := parser.Parse(gctx, text)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})

	if docs.HasCoverLetter() {
		g.Go(func() error {
			info, err := os.Stat(docs.CoverLetterPath)
			if err != nil {
				return fmt.Errorf("cover letter: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("cover letter %s is a directory", docs.CoverLetterPath)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return schemas.CandidateProfile{}, err
	}
	return profile, nil
}

// submitGate adapts a yes/no prompt to the controller's gate. The question
// carries the verification summary so the user sees what is still empty.
func submitGate(confirm func(label string) (bool, error)) autofill.SubmitGate {
	return func(_ context.Context, report schemas.VerificationReport) (bool, error) {
		label := fmt.Sprintf("Submit application? %d fields filled, %d required fields empty", len(report.Filled), len(report.Empty))
		return confirm(label)
	}
}

func promptConfirm(label string) (bool, error) {
	prompt := promptui.Select{
		Label: label,
		Items: []string{promptYes, promptNo},
	}
	_, choice, err := prompt.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("submit prompt: %w", err)
	}
	return choice == promptYes, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
