package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/readsizer/internal/common/app"
	"github.com/G-Research/readsizer/internal/sizer"
)

// Write the pairs of a delivery that still need encoding to a CSV sample sheet.
func sampleSheetCmd(a *sizer.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "samplesheet",
		Short: "Write the pairs of a delivery that still need encoding to a sample sheet.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a, map[string]string{"output": "delivery.output"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.GenerateSampleSheet(app.CreateContextWithShutdown())
		},
	}
	addDeliveryFlags(cmd)
	cmd.Flags().String("output", "", "Where to write the sample sheet, a local path or s3:// URI (default sample_sheet.csv).")
	return cmd
}
