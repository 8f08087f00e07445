// Package config loads run settings, credentials and the table list.
//
// Settings resolve in the order flags, environment, .env file, defaults.
// Credentials come from a JSON file or an AWS Secrets Manager secret holding
// the same JSON document.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"snowflake-mask-report/internal/pipeline"
	"snowflake-mask-report/pkg/types"
)

// Cleanup modes select which workbook is removed when a table starts
const (
	CleanupShared = pipeline.CleanupShared
	CleanupTable  = pipeline.CleanupTable
	CleanupBoth   = pipeline.CleanupBoth
)

// Source kinds
const (
	SourceSnowflake = "snowflake"
	SourceCSV       = "csv"
)

// Viper keys. Each is also read from the upper-cased environment variable.
const (
	KeyNumRows           = "num_rows"
	KeyChunkSize         = "table_chunk_size"
	KeyMaxColumnsPerCall = "max_columns_per_call"
	KeyPollInterval      = "poll_interval"
	KeyMaxPollAttempts   = "max_poll_attempts"
	KeyMaskBaseURL       = "mask_base_url"
	KeyMaskAPIKey        = "mask_api_key"
	KeyOutputDir         = "output_dir"
	KeyTrackingFile      = "tracking_file"
	KeyCleanupMode       = "cleanup_mode"
	KeyCleanOutput       = "clean_output"
	KeySource            = "source"
	KeyDataDir           = "data_dir"
	KeyCredentialsFile   = "credentials_file"
	KeyMappingFile       = "mapping_file"
	KeyInputFile         = "input_file"
	KeySecretName        = "secret_name"
	KeyUseSecrets        = "use_secrets_manager"
	KeyS3Bucket          = "s3_bucket"
	KeyS3Prefix          = "s3_prefix"
	KeyAWSRegion         = "aws_region"
	KeyPushgatewayURL    = "pushgateway_url"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyLogFile           = "log_file"
)

// DefaultMaskBaseURL is the masking service used when none is configured
const DefaultMaskBaseURL = "https://qa.protecto.ai/api/vault"

// Settings are the tunables of one run
type Settings struct {
	NumRows           int
	ChunkSize         int
	MaxColumnsPerCall int
	PollInterval      time.Duration
	MaxPollAttempts   int
	MaskBaseURL       string
	MaskAPIKey        string

	OutputDir    string
	TrackingFile string
	CleanupMode  string
	CleanOutput  bool

	Source          string
	DataDir         string
	CredentialsFile string
	MappingFile     string
	InputFile       string

	SecretName        string
	UseSecretsManager bool

	S3Bucket  string
	S3Prefix  string
	AWSRegion string

	PushgatewayURL string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNumRows, 100)
	v.SetDefault(KeyChunkSize, 10)
	v.SetDefault(KeyMaxColumnsPerCall, types.DefaultMaxColumnsPerCall)
	v.SetDefault(KeyPollInterval, 5*time.Second)
	v.SetDefault(KeyMaxPollAttempts, 0)
	v.SetDefault(KeyMaskBaseURL, DefaultMaskBaseURL)
	v.SetDefault(KeyMaskAPIKey, "")
	v.SetDefault(KeyOutputDir, "output")
	v.SetDefault(KeyTrackingFile, "tracking_ids.txt")
	v.SetDefault(KeyCleanupMode, CleanupShared)
	v.SetDefault(KeyCleanOutput, true)
	v.SetDefault(KeySource, SourceSnowflake)
	v.SetDefault(KeyDataDir, "data")
	v.SetDefault(KeyCredentialsFile, "config/credentials.json")
	v.SetDefault(KeyMappingFile, "config/mask_configuration.json")
	v.SetDefault(KeyInputFile, "input/input_list.txt")
	v.SetDefault(KeySecretName, "")
	v.SetDefault(KeyUseSecrets, false)
	v.SetDefault(KeyS3Bucket, "")
	v.SetDefault(KeyS3Prefix, "")
	v.SetDefault(KeyAWSRegion, "us-east-1")
	v.SetDefault(KeyPushgatewayURL, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
}

// New returns a viper instance with defaults and environment lookup
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return types.NewError(types.KindSetup, "load env", fmt.Errorf("failed to load %s: %w", path, err))
	}
	return nil
}

// FromViper reads Settings out of v
func FromViper(v *viper.Viper) *Settings {
	return &Settings{
		NumRows:           v.GetInt(KeyNumRows),
		ChunkSize:         v.GetInt(KeyChunkSize),
		MaxColumnsPerCall: v.GetInt(KeyMaxColumnsPerCall),
		PollInterval:      v.GetDuration(KeyPollInterval),
		MaxPollAttempts:   v.GetInt(KeyMaxPollAttempts),
		MaskBaseURL:       strings.TrimSpace(v.GetString(KeyMaskBaseURL)),
		MaskAPIKey:        strings.TrimSpace(v.GetString(KeyMaskAPIKey)),

		OutputDir:    v.GetString(KeyOutputDir),
		TrackingFile: v.GetString(KeyTrackingFile),
		CleanupMode:  strings.ToLower(strings.TrimSpace(v.GetString(KeyCleanupMode))),
		CleanOutput:  v.GetBool(KeyCleanOutput),

		Source:          strings.ToLower(strings.TrimSpace(v.GetString(KeySource))),
		DataDir:         v.GetString(KeyDataDir),
		CredentialsFile: v.GetString(KeyCredentialsFile),
		MappingFile:     v.GetString(KeyMappingFile),
		InputFile:       v.GetString(KeyInputFile),

		SecretName:        v.GetString(KeySecretName),
		UseSecretsManager: v.GetBool(KeyUseSecrets),

		S3Bucket:  v.GetString(KeyS3Bucket),
		S3Prefix:  v.GetString(KeyS3Prefix),
		AWSRegion: v.GetString(KeyAWSRegion),

		PushgatewayURL: v.GetString(KeyPushgatewayURL),

		LogLevel:  v.GetString(KeyLogLevel),
		LogFormat: v.GetString(KeyLogFormat),
		LogFile:   v.GetString(KeyLogFile),
	}
}

// Validate checks the settings a run cannot start without
func (s *Settings) Validate() error {
	var problems []string

	if s.MaskBaseURL == "" {
		problems = append(problems, "API base URL is required")
	}
	if s.NumRows <= 0 {
		problems = append(problems, fmt.Sprintf("invalid number of rows: %d", s.NumRows))
	}
	if s.ChunkSize <= 0 {
		problems = append(problems, fmt.Sprintf("invalid table chunk size: %d", s.ChunkSize))
	}
	if s.MaxPollAttempts < 0 {
		problems = append(problems, fmt.Sprintf("invalid max poll attempts: %d", s.MaxPollAttempts))
	}
	if s.PollInterval < 0 {
		problems = append(problems, fmt.Sprintf("invalid poll interval: %s", s.PollInterval))
	}
	if s.OutputDir == "" {
		problems = append(problems, "output directory is required")
	}
	switch s.CleanupMode {
	case CleanupShared, CleanupTable, CleanupBoth:
	default:
		problems = append(problems, fmt.Sprintf("unknown cleanup mode %q", s.CleanupMode))
	}
	switch s.Source {
	case SourceSnowflake:
	case SourceCSV:
		if s.DataDir == "" {
			problems = append(problems, "data directory is required for the csv source")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown source %q", s.Source))
	}

	if len(problems) > 0 {
		return types.Errorf(types.KindSetup, "validate settings", "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WarehouseLogin reports whether the configured source needs Snowflake credentials
func (s *Settings) WarehouseLogin() bool {
	return s.Source == SourceSnowflake
}

// UseSecrets reports whether credentials should come from Secrets Manager
func (s *Settings) UseSecrets() bool {
	return s.UseSecretsManager || s.SecretName != ""
}
