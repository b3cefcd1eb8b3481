package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/readsizer/internal/common"
	"github.com/G-Research/readsizer/internal/common/logging"
	"github.com/G-Research/readsizer/internal/sizer"
	"github.com/G-Research/readsizer/internal/sizer/configuration"
)

const (
	envPrefix  = "SIZER"
	configFlag = "config"
)

// flagKeys maps each flag that overrides configuration to its config key.
var flagKeys = map[string]string{
	"log-level":       "logLevel",
	"region":          "region",
	"no-sign-request": "noSignRequest",
	"metrics-file":    "metricsFile",

	"bucket":          "delivery.bucket",
	"delivery":        "delivery.delivery",
	"sample-sheet":    "delivery.sampleSheet",
	"outdir":          "delivery.outDir",
	"ignore-existing": "delivery.ignoreExisting",

	"chunk-size":       "encoding.chunkSize",
	"zstd-level":       "encoding.zstdLevel",
	"zstd-concurrency": "encoding.concurrency",

	"job-queue":      "batch.jobQueue",
	"job-definition": "batch.jobDefinition",
	"executable":     "batch.executable",
	"max-retries":    "batch.maxRetries",
	"parallelism":    "batch.parallelism",
	"dry-run":        "batch.dryRun",
	"wait":           "batch.wait",
	"poll-interval":  "batch.pollInterval",
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringSlice(configFlag, nil, "Config file(s) layered over the built-in defaults, later files win.")
	flags.String("log-level", "", "Log level: debug, info, warn or error (default info).")
	flags.String("region", "", "AWS region, overriding the one from the environment.")
	flags.Bool("no-sign-request", false, "Read S3 anonymously, for public buckets.")
	flags.String("metrics-file", "", "Write run metrics to this file in Prometheus text format.")
}

func addDeliveryFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("bucket", "", "S3 bucket holding the delivery.")
	flags.String("delivery", "", "Delivery directory within the bucket; raw pairs are read from <delivery>/raw/.")
	flags.String("outdir", "", "Write chunks here instead of s3://<bucket>/<delivery>/siz/.")
	flags.Bool("ignore-existing", false, "Process every pair, even those that already have chunks.")
}

func addEncodingFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("chunk-size", "", "Read pairs per chunk, e.g. 1000000 or 1M (default 1M).")
	flags.String("zstd-level", "", "zstd level: 1-22 or fastest, default, better, best (default 5).")
}

// initParams resolves app.Params.Config from defaults, --config files, SIZER_* environment variables and the
// flags of cmd, in increasing order of precedence. extraKeys binds command specific flags.
func initParams(cmd *cobra.Command, app *sizer.App, extraKeys ...map[string]string) error {
	v := viper.New()
	keys := flagKeys
	if len(extraKeys) > 0 {
		keys = make(map[string]string, len(flagKeys))
		for flag, key := range flagKeys {
			keys[flag] = key
		}
		for _, extra := range extraKeys {
			for flag, key := range extra {
				keys[flag] = key
			}
		}
	}
	if err := common.BindFlags(v, cmd.Flags(), keys); err != nil {
		return err
	}
	configs, err := cmd.Flags().GetStringSlice(configFlag)
	if err != nil {
		return err
	}
	if err := common.LoadConfig(v, &app.Params.Config, configuration.Defaults, envPrefix, configs); err != nil {
		return err
	}
	return logging.SetLevel(app.Params.Config.LogLevel)
}
