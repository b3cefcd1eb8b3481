package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/readsizer/internal/sizer"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	app := sizer.New()
	app.CountLogMessages(log.StandardLogger())
	return rootCmd(app)
}

func rootCmd(app *sizer.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sizer",
		Short: "sizer converts paired FASTQ deliveries into split, interleaved, zstd compressed chunks.",
		Long: `sizer converts paired FASTQ deliveries into split, interleaved, zstd compressed (SIZ) chunks.

Every read pair of a delivery (s3://<bucket>/<delivery>/raw/<id>_1.fastq.gz and <id>_2.fastq.gz)
is encoded by its own AWS Batch job into s3://<bucket>/<delivery>/siz/<id>_chunk000000.fastq.zst, ...
Pairs that already have chunks are skipped unless --ignore-existing is given.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:
batch:
  jobQueue: sizer-queue
  jobDefinition: sizer-job:3
encoding:
  chunkSize: 1M
  zstdLevel: better

Config files are passed with --config; settings can also be given as SIZER_* environment variables,
e.g. SIZER_BATCH_JOBQUEUE.`,
		SilenceUsage: true,
	}

	addGlobalFlags(cmd)

	cmd.AddCommand(
		versionCmd(app),
		sampleSheetCmd(app),
		submitCmd(app),
		encodeCmd(app),
	)

	return cmd
}

// Print version info and exit.
func versionCmd(app *sizer.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Version()
		},
	}
	return cmd
}
