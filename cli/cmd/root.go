// Package cmd provides the Cobra commands for the tracebase CLI.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tracebase-eu/tracebase/cli/client"
	"github.com/tracebase-eu/tracebase/cli/output"
)

const defaultServer = "http://localhost:8080"

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	serverURL string
	token     string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// CLI settings live apart from the global viper instance, which
	// config.Load owns for the server configuration.
	settings = viper.New()

	// Shared across commands
	apiClient *client.Client
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tracebase",
	Short: "tracebase CLI - inspect and resolve list presets",
	Long: `tracebase CLI resolves list presets into the filter queries sent to the
data service.

Get started:
  tracebase presets list                          Show available presets
  tracebase presets resolve CASES_DECEASED        Print the composed query
  tracebase presets watch < navigation.txt        Drive an orchestrator from stdin`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmd.SilenceErrors = quiet
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"tracebase server URL (default "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&token, "token", "",
		"bearer token for the tracebase server")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	settings.SetEnvPrefix("TRACEBASE")
	_ = settings.BindEnv("server") // TRACEBASE_SERVER
	_ = settings.BindEnv("token")  // TRACEBASE_TOKEN
	_ = settings.BindEnv("debug")  // TRACEBASE_DEBUG
	_ = settings.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = settings.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = settings.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	settings.SetDefault("server", defaultServer)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(presetsCmd)
}

// initializeClient sets up the API client for commands that need it
func initializeClient(cmd *cobra.Command, args []string) error {
	if err := initializeFormatter(cmd, args); err != nil {
		return err
	}
	debug = settings.GetBool("debug")
	apiClient = client.NewClient(settings.GetString("server"), settings.GetString("token"),
		client.WithDebug(debug),
	)
	return nil
}

func initializeFormatter(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	return nil
}
