package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStatsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the stored record count and a few sample rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats := rt.app.Stats(cmd.Context())
			rt.logger.Info("stored business records", zap.Int64("count", stats.Count))
			for _, rec := range stats.Sample {
				website := ""
				if rec.WebsiteURL != nil {
					website = *rec.WebsiteURL
				}
				rt.logger.Info("sample record",
					zap.Int64("id", rec.ID),
					zap.String("company_name", rec.CompanyName),
					zap.String("website_url", website))
			}
			return nil
		},
	}
}
