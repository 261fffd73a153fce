// telinv exports a cloud telephony tenant's inventory to flat artifacts and
// applies staged bulk configuration from a record CSV.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"telinv/internal/config"
	"telinv/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagLogLevel  string
	flagLogFormat string
	flagEnvFile   string
)

var rootCmd = &cobra.Command{
	Use:   "telinv",
	Short: "Inventory exporter and staged bulk-apply runner",
	Long: "telinv reads a telephony tenant's inventory into CSV/JSON artifacts\n" +
		"and applies staged per-user configuration with operator-gated decisions.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.ParseLevel(flagLogLevel), flagLogFormat)
		return config.LoadDotenv(flagEnvFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log format: text|json")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "optional .env file to load")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
