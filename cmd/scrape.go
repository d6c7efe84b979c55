package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape [url,url...] [url...]",
		Short: "Fetch directory pages and store the extracted records",
		Long: `Fetches each URL in turn, extracts company records, normalizes and
deduplicates them, and upserts them into the configured store. URLs may be
given as separate arguments, comma-separated, or both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := splitURLs(args)
			if len(urls) == 0 {
				rt.logger.Error("no URLs given")
				return cmd.Usage()
			}

			sum, err := rt.app.Scrape(cmd.Context(), urls)
			if err != nil {
				return err
			}
			rt.logger.Info("scrape finished",
				zap.String("run_id", sum.RunID),
				zap.Int("urls", sum.URLs),
				zap.Int("failed", sum.Failed),
				zap.Int("saved", sum.Unique),
				zap.Int("inserted", sum.Inserted))
			return nil
		},
	}
}

func splitURLs(args []string) []string {
	var urls []string
	for _, arg := range args {
		for _, u := range strings.Split(arg, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}
