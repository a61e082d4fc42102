package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"tocfetch/lib/configutil"
	"tocfetch/lib/serviceutil"
	"tocfetch/lib/telemetry"
	"tocfetch/services/pipeline"

	"github.com/spf13/cobra"
)

// Config holds the optional endpoint overrides read from
// tocfetch.json5, so the tool can point at other Evergreen
// installations without a rebuild.
type Config struct {
	Endpoints pipeline.Endpoints `json:"endpoints"`
}

var (
	inputPath  *string
	outputPath *string
	skipStage1 *bool
	skipStage2 *bool
	skipStage3 *bool
	delay      *float64
	maxRetries *int
	verbose    *bool
	debug      *bool
	cleanTemp  *bool
)

func init() {
	flags := rootCmd.Flags()
	inputPath = flags.StringP("input", "i", "", "Path to the input CSV file.")
	outputPath = flags.StringP("output", "o", "", "Path to the output CSV file.")
	skipStage1 = flags.Bool("skip-stage1", false, "Skip stage 1: local catalog processing.")
	skipStage2 = flags.Bool("skip-stage2", false, "Skip stage 2: LCCN lookup.")
	skipStage3 = flags.Bool("skip-stage3", false, "Skip stage 3: 505 field retrieval.")
	delay = flags.Float64P("delay", "d", 1.0, "Delay before each HTTP request in seconds.")
	maxRetries = flags.IntP("max-retries", "r", 3, "Maximum number of retries for failed requests.")
	verbose = flags.BoolP("verbose", "v", false, "Enable verbose output.")
	debug = flags.Bool("debug", false, "Persist raw HTTP exchanges under the debug directory.")
	cleanTemp = flags.Bool("clean-temp", false, "Clean up intermediate files after processing.")

	cobra.CheckErr(rootCmd.MarkFlagRequired("input"))
	cobra.CheckErr(rootCmd.MarkFlagRequired("output"))
}

var rootCmd = &cobra.Command{
	Use:   "tocfetch -i <input.csv> -o <output.csv>",
	Short: "tocfetch enriches catalog records with ISBNs, LCCNs and MARC 505 tables of contents.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		telemetry.InitSlog(*verbose)
		tel, err := telemetry.SetupFromEnv(ctx, "tocfetch")
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer tel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		cfg, err := configutil.ReadConfig[Config]("tocfetch.json5")
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			serviceutil.Fatal("failed to read config", err)
		}

		p, err := pipeline.New(pipeline.Options{
			Input:      *inputPath,
			Output:     *outputPath,
			SkipStage1: *skipStage1,
			SkipStage2: *skipStage2,
			SkipStage3: *skipStage3,
			Delay:      time.Duration(*delay * float64(time.Second)),
			MaxRetries: *maxRetries,
			Debug:      *debug,
			CleanTemp:  *cleanTemp,
			Endpoints:  cfg.Endpoints,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize pipeline", err)
		}

		err = p.Run(ctx)
		if err != nil {
			serviceutil.Fatal("processing failed", err)
		}

		fmt.Printf("Processing complete! Final results saved to: %s\n", *outputPath)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
