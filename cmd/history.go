package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		id    string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded application runs as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, err := store.Open(ctx, a.cfg.Database(), observability.GetLogger())
			if err != nil {
				return err
			}
			defer backend.Close()

			if id != "" {
				rec, err := backend.GetApplication(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			}

			recs, err := backend.ListApplications(ctx, limit)
			if err != nil {
				return err
			}
			if recs == nil {
				recs = []schemas.ApplicationRecord{}
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&id, "id", "", "show a single run, including its submission attempts")
	return cmd
}
