package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/readsizer/internal/common/app"
	"github.com/G-Research/readsizer/internal/common/logging"
	"github.com/G-Research/readsizer/internal/sizer"
)

// Encode a single pair; this is what each submitted job runs.
func encodeCmd(a *sizer.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode one read pair into SIZ chunks.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureLogging()
			if err := initParams(cmd, a); err != nil {
				return err
			}
			return initEncodeParams(cmd, a)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Encode(app.CreateContextWithShutdown())
		},
	}
	addEncodingFlags(cmd)
	flags := cmd.Flags()
	flags.String("forward", "", "Forward reads, a local path or s3:// URI, optionally gzipped.")
	flags.String("reverse", "", "Reverse reads, a local path or s3:// URI, optionally gzipped.")
	flags.String("output", "", "Chunk prefix, e.g. s3://bucket/delivery/siz/sample.")
	flags.Int("zstd-concurrency", 0, "Goroutines compressing each chunk (default GOMAXPROCS).")
	for _, name := range []string{"forward", "reverse", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func initEncodeParams(cmd *cobra.Command, a *sizer.App) error {
	var err error
	p := &a.Params.Encode
	if p.Forward, err = cmd.Flags().GetString("forward"); err != nil {
		return err
	}
	if p.Reverse, err = cmd.Flags().GetString("reverse"); err != nil {
		return err
	}
	p.Output, err = cmd.Flags().GetString("output")
	return err
}
