// Command fastcap captures network traffic into a sharded capture file
// and merges captured shards into a PCAPNG trace.
package main

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fastcap/fastcap/internal/logging"
)

var (
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:           "fastcap",
	Short:         "Capture packets to a sharded capture file and build PCAPNG traces from it",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the selected subcommand. It is the sole entry point called
// from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"trace|debug|info|warning|error|off")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"write logs to PATH instead of stdout")

	viper.SetEnvPrefix("FCAP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(devicesCmd)
}

// resolvedLogger builds the shared logger from the persistent flags, with
// an explicitly-set flag value always winning over its FCAP_-prefixed
// environment counterpart.
func resolvedLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	level := logLevel
	if !cmd.Flags().Changed("log-level") {
		level = viper.GetString("log-level")
	}
	file := logFile
	if !cmd.Flags().Changed("log-file") {
		file = viper.GetString("log-file")
	}
	return logging.New(level, file)
}
