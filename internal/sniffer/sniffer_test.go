package sniffer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

type fakeSource struct {
	packets []gopacket.CaptureInfo
	data    [][]byte
	next    int
	stats   pcap.Stats
	statErr error
}

func (f *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if f.next >= len(f.packets) {
		return nil, gopacket.CaptureInfo{}, pcap.NextErrorTimeoutExpired
	}
	ci := f.packets[f.next]
	data := f.data[f.next]
	f.next++
	return data, ci, nil
}

func (f *fakeSource) Stats() (*pcap.Stats, error) {
	if f.statErr != nil {
		return nil, f.statErr
	}
	s := f.stats
	return &s, nil
}

type fakeSink struct {
	packets []struct {
		secs, frac         uint64
		length, caplen     uint32
	}
	statsCalls int
}

func (s *fakeSink) IngestPacket(secs, frac uint64, length, caplen uint32, bytes []byte) {
	s.packets = append(s.packets, struct {
		secs, frac     uint64
		length, caplen uint32
	}{secs, frac, length, caplen})
}

func (s *fakeSink) IngestStats(secs, frac, recv, ifaceDrops, osDrops uint64) {
	s.statsCalls++
}

func TestRunDeliversPacketsAndFinalStats(t *testing.T) {
	now := time.Now()
	src := &fakeSource{
		packets: []gopacket.CaptureInfo{
			{Timestamp: now, CaptureLength: 10, Length: 100},
			{Timestamp: now, CaptureLength: 20, Length: 200},
		},
		data: [][]byte{make([]byte, 10), make([]byte, 20)},
	}
	sink := &fakeSink{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Give Run a couple of iterations to drain the two packets before
		// the timeout-expired sentinel starts repeating, then stop it.
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := Run(ctx, src, sink, 0, false, nil); err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}

	if len(sink.packets) != 2 {
		t.Fatalf("packets: want 2, got %d", len(sink.packets))
	}
	if sink.packets[0].caplen != 10 || sink.packets[1].caplen != 20 {
		t.Errorf("caplen mismatch: %+v", sink.packets)
	}
	if sink.statsCalls != 1 {
		t.Errorf("stats calls: want 1 (only at shutdown), got %d", sink.statsCalls)
	}
}

func TestRunReturnsFatalSourceError(t *testing.T) {
	src := &fakeSourceErr{err: errors.New("pcap: fatal")}
	sink := &fakeSink{}

	err := Run(context.Background(), src, sink, 0, false, nil)
	if err == nil {
		t.Fatal("Run: want a fatal error propagated")
	}
}

type fakeSourceErr struct {
	err error
}

func (f *fakeSourceErr) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, f.err
}

func (f *fakeSourceErr) Stats() (*pcap.Stats, error) {
	return &pcap.Stats{}, nil
}

func TestSplitTimeMicrosecondsByDefault(t *testing.T) {
	ts := time.Unix(1000, 123456000)
	secs, frac := splitTime(ts, false)
	if secs != 1000 || frac != 123456 {
		t.Errorf("splitTime: want (1000, 123456), got (%d, %d)", secs, frac)
	}
}

func TestSplitTimeNanoseconds(t *testing.T) {
	ts := time.Unix(1000, 123456789)
	secs, frac := splitTime(ts, true)
	if secs != 1000 || frac != 123456789 {
		t.Errorf("splitTime: want (1000, 123456789), got (%d, %d)", secs, frac)
	}
}
