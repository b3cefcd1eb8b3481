package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/readsizer/internal/common/app"
	"github.com/G-Research/readsizer/internal/sizer"
)

// Submit one encoding job per pending pair, either of a delivery or of a sample sheet.
func submitCmd(a *sizer.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an AWS Batch job for every read pair that still needs encoding.",
		Long: `Submit an AWS Batch job for every read pair that still needs encoding.

Pairs come either from scanning --bucket/--delivery, skipping pairs that already have chunks,
or from a --sample-sheet written by the samplesheet command, which is used as is.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Submit(app.CreateContextWithShutdown())
		},
	}
	addDeliveryFlags(cmd)
	addEncodingFlags(cmd)
	flags := cmd.Flags()
	flags.String("sample-sheet", "", "Submit the pairs of this sample sheet instead of scanning a delivery.")
	flags.String("job-queue", "", "AWS Batch job queue.")
	flags.String("job-definition", "", "AWS Batch job definition.")
	flags.String("executable", "", "sizer binary inside the job image (default sizer).")
	flags.Int("max-retries", 0, "Retries per job, both for submission errors and for failed jobs (default 3).")
	flags.Int("parallelism", 0, "Jobs submitted concurrently (default 8).")
	flags.Bool("dry-run", false, "Print the jobs that would be submitted without submitting them.")
	flags.Bool("wait", false, "Wait for the jobs to finish, resubmitting failed ones (default true, --wait=false returns once submitted).")
	flags.Duration("poll-interval", 0, "How often to poll job status with --wait (default 5s).")
	cmd.MarkFlagsMutuallyExclusive("sample-sheet", "bucket")
	return cmd
}
