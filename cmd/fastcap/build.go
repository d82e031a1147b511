package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fastcap/fastcap/internal/capfile"
	"github.com/fastcap/fastcap/internal/config"
	"github.com/fastcap/fastcap/internal/pcapng"
)

var buildCmd = &cobra.Command{
	Use:   "build <pcapng> <capfile>...",
	Short: "Merge capture file shards into a PCAPNG trace",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Build{Output: args[0], Capfiles: args[1:]}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err := resolvedLogger(cmd)
		if err != nil {
			return err
		}
		return runBuild(cfg, logger)
	},
}

func runBuild(cfg config.Build, logger interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}) error {
	rs, err := capfile.OpenReaderSet(cfg.Capfiles, logger)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	defer rs.Close()

	out, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	defer out.Close()

	if err := pcapng.New(out, rs, logger).WriteAll(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return nil
}
