package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/export"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

func newExportCmd(rt *runtime) *cobra.Command {
	var params store.SearchParams
	cmd := &cobra.Command{
		Use:   "export [csv|excel]",
		Short: "Export stored records to a CSV or Excel file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := export.FormatCSV
			if len(args) == 1 {
				format = args[0]
			}
			if _, err := export.ParseFormat(format); err != nil {
				rt.logger.Error("unsupported export format", zap.String("format", format))
				return nil
			}

			uri, err := rt.app.Export(cmd.Context(), format, params)
			switch {
			case errors.Is(err, export.ErrNoRecords):
				rt.logger.Warn("nothing was exported")
				return nil
			case err != nil:
				return err
			}
			rt.logger.Info("export finished", zap.String("uri", uri))
			return nil
		},
	}
	cmd.Flags().StringVar(&params.CompanyName, "name", "", "only records whose company name contains this text")
	cmd.Flags().StringVar(&params.PostalCode, "postal-code", "", "only records with this postal code")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "maximum number of records (default all, or 100 when filtering)")
	return cmd
}
