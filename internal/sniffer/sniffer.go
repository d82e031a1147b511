// Package sniffer drives a live capture: it owns the pcap handle, turns
// each captured packet and periodic statistics snapshot into a call
// against a Sink, and reacts to SIGINT with an idempotent shutdown.
package sniffer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/fastcap/fastcap/internal/config"
)

// Open activates a pcap handle for cfg, applying snaplen, promiscuous,
// monitor, and immediate-mode settings before the BPF filter, matching
// the order libpcap requires them in.
func Open(cfg config.Capture) (*pcap.Handle, error) {
	inactive, err := pcap.NewInactiveHandle(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("sniffer: open %s: %w", cfg.Interface, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(int(cfg.Snaplen)); err != nil {
		return nil, fmt.Errorf("sniffer: set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(cfg.Promisc); err != nil {
		return nil, fmt.Errorf("sniffer: set promiscuous mode: %w", err)
	}
	if cfg.Monitor {
		if err := inactive.SetRFMon(true); err != nil {
			return nil, fmt.Errorf("sniffer: set monitor mode: %w", err)
		}
	}
	if err := inactive.SetImmediateMode(cfg.Immediate); err != nil {
		return nil, fmt.Errorf("sniffer: set immediate mode: %w", err)
	}
	if err := inactive.SetTimeout(time.Second); err != nil {
		return nil, fmt.Errorf("sniffer: set read timeout: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("sniffer: activate %s: %w", cfg.Interface, err)
	}

	if cfg.Filter != "" {
		if err := handle.SetBPFFilter(cfg.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("sniffer: compile filter %q: %w", cfg.Filter, err)
		}
	}
	return handle, nil
}

// PacketSource is the subset of *pcap.Handle that the capture loop needs,
// narrowed so the loop can be exercised against a fake in tests.
type PacketSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	Stats() (*pcap.Stats, error)
}

// Sink receives decoded packet and statistics entries for persistence.
type Sink interface {
	IngestPacket(secs, frac uint64, length, caplen uint32, bytes []byte)
	IngestStats(secs, frac, recv, ifaceDrops, osDrops uint64)
}

// Logger is the narrow logging surface the capture loop reports through.
type Logger interface {
	Warnf(format string, args ...interface{})
}

func splitTime(t time.Time, nano bool) (secs, frac uint64) {
	secs = uint64(t.Unix())
	if nano {
		return secs, uint64(t.Nanosecond())
	}
	return secs, uint64(t.Nanosecond() / 1000)
}

func readStats(src PacketSource, logger Logger) (recv, ifaceDrops, osDrops uint64) {
	stats, err := src.Stats()
	if err != nil {
		if logger != nil {
			logger.Warnf("sniffer: stats unavailable: %v", err)
		}
		return 0, 0, 0
	}
	return uint64(stats.PacketsReceived), uint64(stats.PacketsIfDropped), uint64(stats.PacketsDropped)
}

func isTransient(err error) bool {
	type temporary interface {
		Temporary() bool
	}
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return err == pcap.NextErrorTimeoutExpired
}

// Run reads packets from src until ctx is cancelled, feeding each one to
// sink and emitting a statistics record at least every statsInterval (or
// only once, at shutdown, if statsInterval is zero). A final statistics
// record is always emitted on the way out, unless one was already taken
// within the last interval.
func Run(ctx context.Context, src PacketSource, sink Sink, statsInterval time.Duration, nano bool, logger Logger) error {
	lastStats := time.Now()

	emitStats := func() {
		recv, ifaceDrops, osDrops := readStats(src, logger)
		secs, frac := splitTime(time.Now(), nano)
		sink.IngestStats(secs, frac, recv, ifaceDrops, osDrops)
		lastStats = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			if statsInterval == 0 || time.Since(lastStats) >= statsInterval {
				emitStats()
			}
			return nil
		default:
		}

		data, ci, err := src.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if isTransient(err) {
				if logger != nil {
					logger.Warnf("sniffer: transient read error: %v", err)
				}
				continue
			}
			return fmt.Errorf("sniffer: %w", err)
		}

		secs, frac := splitTime(ci.Timestamp, nano)
		sink.IngestPacket(secs, frac, uint32(ci.Length), uint32(ci.CaptureLength), data)

		if statsInterval > 0 && time.Since(lastStats) >= statsInterval {
			emitStats()
		}
	}
}

// WithInterruptHandler derives a cancellable context from parent that is
// cancelled the first time this process receives SIGINT. Every signal
// after the first is a no-op, since cancel is guarded by a sync.Once.
func WithInterruptHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	var once sync.Once
	stop := func() {
		once.Do(cancel)
		signal.Stop(sigCh)
	}

	go func() {
		for range sigCh {
			once.Do(cancel)
		}
	}()

	return ctx, stop
}
