package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"snowflake-mask-report/internal/config"
	"snowflake-mask-report/internal/ledger"
	"snowflake-mask-report/internal/mapping"
	"snowflake-mask-report/internal/masking"
	"snowflake-mask-report/internal/metrics"
	"snowflake-mask-report/internal/metrics/prompush"
	"snowflake-mask-report/internal/pipeline"
	"snowflake-mask-report/internal/publish"
	"snowflake-mask-report/internal/report"
	"snowflake-mask-report/internal/warehouse"
	"snowflake-mask-report/pkg/types"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Mask every table of the input list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMasking(ctx)
		},
	}

	f := cmd.Flags()
	f.Int("num-rows", 100, "maximum rows fetched per table")
	f.Int("chunk-size", 10, "rows per warehouse fetch and masking call")
	f.Int("max-columns", types.DefaultMaxColumnsPerCall, "maximum columns per masking call")
	f.Duration("poll-interval", masking.DefaultPollInterval, "wait between status polls")
	f.Int("max-poll-attempts", 0, "give up on a job after this many polls (0 = never)")
	f.String("base-url", config.DefaultMaskBaseURL, "masking service base URL")
	f.String("output-dir", "output", "directory for per-table workbooks")
	f.String("tracking-file", "tracking_ids.txt", "ledger file of pending tracking ids")
	f.String("cleanup-mode", config.CleanupShared, "workbook removed before each table: shared, table or both")
	f.Bool("clean-output", true, "remove the output directory when the run starts")
	f.String("source", config.SourceSnowflake, "row source: snowflake or csv")
	f.String("data-dir", "data", "directory of <TABLE>.csv files for the csv source")
	f.String("credentials", "config/credentials.json", "credentials JSON file")
	f.String("mapping", "config/mask_configuration.json", "column mapping JSON file")
	f.String("input", "input/input_list.txt", "newline-delimited table list")
	f.String("secret-name", "", "read credentials from this AWS Secrets Manager secret")
	f.String("s3-bucket", "", "upload finished workbooks to this bucket")
	f.String("s3-prefix", "", "key prefix for uploaded workbooks")
	f.String("aws-region", "us-east-1", "AWS region for Secrets Manager and S3")
	f.String("pushgateway-url", "", "push run metrics to this Prometheus Pushgateway")

	bindFlags(v, f, map[string]string{
		config.KeyNumRows:           "num-rows",
		config.KeyChunkSize:         "chunk-size",
		config.KeyMaxColumnsPerCall: "max-columns",
		config.KeyPollInterval:      "poll-interval",
		config.KeyMaxPollAttempts:   "max-poll-attempts",
		config.KeyMaskBaseURL:       "base-url",
		config.KeyOutputDir:         "output-dir",
		config.KeyTrackingFile:      "tracking-file",
		config.KeyCleanupMode:       "cleanup-mode",
		config.KeyCleanOutput:       "clean-output",
		config.KeySource:            "source",
		config.KeyDataDir:           "data-dir",
		config.KeyCredentialsFile:   "credentials",
		config.KeyMappingFile:       "mapping",
		config.KeyInputFile:         "input",
		config.KeySecretName:        "secret-name",
		config.KeyS3Bucket:          "s3-bucket",
		config.KeyS3Prefix:          "s3-prefix",
		config.KeyAWSRegion:         "aws-region",
		config.KeyPushgatewayURL:    "pushgateway-url",
	})
	return cmd
}

func runMasking(ctx context.Context) error {
	settings := config.FromViper(v)
	if err := settings.Validate(); err != nil {
		return err
	}

	var secrets config.SecretGetter
	if settings.UseSecrets() {
		client, err := config.NewSecretsClient(ctx, settings.AWSRegion)
		if err != nil {
			return err
		}
		secrets = client
	}
	creds, err := config.LoadCredentials(ctx, settings, secrets)
	if err != nil {
		return err
	}
	if config.Interactive() {
		if err := creds.PromptMissing(config.TerminalPrompter{}, settings.WarehouseLogin()); err != nil {
			return types.NewError(types.KindSetup, "prompt credentials", err)
		}
	}
	if err := creds.Validate(settings.WarehouseLogin()); err != nil {
		return err
	}

	tables, err := config.LoadTables(settings.InputFile)
	if err != nil {
		return err
	}

	if settings.PushgatewayURL != "" {
		backend, err := prompush.NewBackend("maskreport", settings.PushgatewayURL)
		if err != nil {
			return types.NewError(types.KindSetup, "configure metrics", err)
		}
		metrics.SetBackend(backend)
		defer func() {
			if err := metrics.Flush(); err != nil {
				log.WithError(err).Warn("Failed to push metrics")
			}
		}()
	}

	var source types.Source
	switch settings.Source {
	case config.SourceCSV:
		source = warehouse.NewCSVDir(settings.DataDir)
	default:
		source = warehouse.NewSnowflake(creds.Snowflake(), log)
	}

	client := masking.NewClient(settings.MaskBaseURL, creds.APIKey)
	deps := pipeline.Deps{
		Source: source,
		Client: client,
		Poller: masking.NewPoller(client, masking.PollerConfig{
			Interval:    settings.PollInterval,
			MaxAttempts: settings.MaxPollAttempts,
			Logger:      log,
		}),
		Mappings: mapping.NewResolver(settings.MappingFile, log),
		Ledger:   ledger.Open(settings.TrackingFile),
		Report:   report.NewWriter(settings.OutputDir, log),
		Logger:   log,
	}
	if settings.S3Bucket != "" {
		publisher, err := publish.NewS3FromEnv(ctx, settings.AWSRegion, settings.S3Bucket, settings.S3Prefix, log)
		if err != nil {
			return err
		}
		deps.Publisher = publisher
	}

	driver, err := pipeline.NewDriver(pipeline.Config{
		NumRows:           settings.NumRows,
		ChunkSize:         settings.ChunkSize,
		MaxColumnsPerCall: settings.MaxColumnsPerCall,
		CleanupMode:       settings.CleanupMode,
		CleanOutput:       settings.CleanOutput,
		KeepPaths:         []string{settings.CredentialsFile, settings.MappingFile, settings.InputFile},
	}, deps)
	if err != nil {
		return err
	}

	summary, err := driver.Run(ctx, tables)
	if summary != nil {
		summary.Print(os.Stdout)
	}
	return err
}
