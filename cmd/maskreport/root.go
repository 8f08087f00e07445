package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"snowflake-mask-report/internal/config"
	"snowflake-mask-report/internal/logger"
)

var (
	envFile string
	v       = config.New()
	log     = logrus.StandardLogger()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "maskreport",
	Short: "Mask warehouse tables through an async masking API into xlsx reports",
	Long: `maskreport exports rows from each listed warehouse table in chunks, submits
the cell values to an asynchronous masking service, polls the jobs and writes
the masked values into one workbook per table.

Examples:
  maskreport run
  maskreport run --num-rows 500 --chunk-size 50 --input input/input_list.txt
  maskreport run --source csv --data-dir data
  maskreport generate --tables CUSTOMERS,ORDERS --rows 200 --data-dir data
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		l, err := logger.Init(logger.Config{
			Level:  v.GetString(config.KeyLogLevel),
			Format: v.GetString(config.KeyLogFormat),
			File:   v.GetString(config.KeyLogFile),
		})
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with default settings")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("log-file", "", "rotate logs into this file instead of stdout")

	bindFlags(v, pf, map[string]string{
		config.KeyLogLevel:  "log-level",
		config.KeyLogFormat: "log-format",
		config.KeyLogFile:   "log-file",
	})

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newGenerateCmd())
}

// bindFlags binds viper keys to flags so explicitly set flags win over the
// environment and defaults
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}
