// cmd/match.go
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/resume"
	"github.com/xkilldash9x/formpilot/internal/store"
)

func newMatchCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "match <resume-file|text>",
		Short: "Rank indexed job postings against a resume or free text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			text, err := matchText(args[0])
			if err != nil {
				return err
			}

			backend, err := store.Open(ctx, a.cfg.Database(), observability.GetLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			results, err := backend.Query(ctx, text, limit)
			if err != nil {
				return err
			}
			if results == nil {
				results = []schemas.SearchResult{}
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of postings to return")
	return cmd
}

// matchText reads arg as a resume when it names a regular file and treats it
// as literal query text otherwise.
func matchText(arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		return resume.ExtractText(arg)
	}
	return arg, nil
}
