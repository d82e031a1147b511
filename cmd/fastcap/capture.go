package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fastcap/fastcap/internal/capfile"
	"github.com/fastcap/fastcap/internal/config"
	"github.com/fastcap/fastcap/internal/device"
	"github.com/fastcap/fastcap/internal/hostinfo"
	"github.com/fastcap/fastcap/internal/sniffer"
)

var captureFlags config.Capture

var captureCmd = &cobra.Command{
	Use:   "capture <interface> <output>",
	Short: "Capture live traffic into a sharded capture file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		captureFlags.Interface = args[0]
		captureFlags.Output = args[1]
		if err := captureFlags.Validate(); err != nil {
			return err
		}

		logger, err := resolvedLogger(cmd)
		if err != nil {
			return err
		}

		return runCapture(captureFlags, logger)
	},
}

func init() {
	f := captureCmd.Flags()
	f.IntVarP(&captureFlags.Shards, "shards", "c", 1, "number of capture file shards (>=1)")
	f.IntVarP(&captureFlags.StatsInterval, "stats-interval", "t", 0, "seconds between statistics records (0: only at shutdown)")
	f.Int32VarP(&captureFlags.Snaplen, "snaplen", "s", 262144, "snapshot length in bytes (>0)")
	f.IntVarP(&captureFlags.BufferMiB, "buffer", "b", 16, "ring buffer size in MiB (>=1)")
	f.BoolVarP(&captureFlags.Nano, "nano", "n", false, "record nanosecond timestamps")
	f.BoolVarP(&captureFlags.Promisc, "promiscuous", "p", false, "enable promiscuous mode")
	f.BoolVarP(&captureFlags.Monitor, "monitor", "m", false, "enable monitor mode")
	f.BoolVarP(&captureFlags.Immediate, "immediate", "i", false, "enable immediate mode")
	f.StringVarP(&captureFlags.Filter, "filter", "f", "", "BPF filter expression")
}

func runCapture(cfg config.Capture, logger *logrus.Logger) error {
	handle, err := sniffer.Open(cfg)
	if err != nil {
		return err
	}
	defer handle.Close()

	lead := &capfile.LeadRecord{
		CPUModel:      hostinfo.CPUModel(),
		OSVersion:     hostinfo.OSVersion(),
		InterfaceName: cfg.Interface,
		Nano:          cfg.Nano,
		Filter:        cfg.Filter,
		Snaplen:       cfg.Snaplen,
		LinkType:      uint16(handle.LinkType()),
	}
	if info, err := device.Collect(cfg.Interface); err != nil {
		logger.Warnf("device metadata unavailable for %s: %v", cfg.Interface, err)
	} else {
		lead.IPv4 = info.IPv4
		lead.IPv6 = info.IPv6
		lead.HasMAC = info.HasMAC
		lead.MAC = info.MAC
		lead.Hardware = info.Hardware
		lead.LinkSpeedBps = info.SpeedBps
	}

	ws, err := capfile.NewWriterSet(cfg.Output, cfg.Shards, cfg.BufferBytes(), lead)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	ctx, stop := sniffer.WithInterruptHandler(context.Background())
	defer stop()

	statsInterval := time.Duration(cfg.StatsInterval) * time.Second
	runErr := sniffer.Run(ctx, handle, ws, statsInterval, cfg.Nano, logger)

	if joinErr := ws.Join(); joinErr != nil {
		if runErr == nil {
			runErr = joinErr
		}
	}
	if drops := ws.Drops(); drops > 0 {
		logger.Warnf("capture: %d records dropped for lack of buffer space", drops)
	}
	return runErr
}
