// cmd/profile.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/llmclient"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/resume"
)

func newProfileCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "profile <resume>",
		Short: "Parse a resume into a reusable candidate profile file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			text, err := resume.ExtractText(args[0])
			if err != nil {
				return err
			}

			llm, err := llmclient.NewClient(ctx, a.cfg.LLM(), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM client: %w", err)
			}
			defer llm.Close()

			profile, err := resume.NewParser(llm, logger).Parse(ctx, text)
			if err != nil {
				return err
			}
			if err := resume.SaveProfile(output, profile); err != nil {
				return err
			}
			logger.Info("Profile written.", zap.String("path", output), zap.String("name", profile.Personal.FullName))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "profile.yaml", "where to write the profile")
	return cmd
}
