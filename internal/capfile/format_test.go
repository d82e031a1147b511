package capfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeID(t *testing.T) {
	raw := EncodeID(42, true)
	id, isStats := DecodeID(raw)
	if id != 42 || !isStats {
		t.Errorf("DecodeID(EncodeID(42, true)): want (42, true), got (%d, %v)", id, isStats)
	}

	raw = EncodeID(7, false)
	id, isStats = DecodeID(raw)
	if id != 7 || isStats {
		t.Errorf("DecodeID(EncodeID(7, false)): want (7, false), got (%d, %v)", id, isStats)
	}
}

func TestDetectOrderNative(t *testing.T) {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], Magic)
	order, err := DetectOrder(raw)
	if err != nil {
		t.Fatalf("DetectOrder: unexpected error: %v", err)
	}
	if order != binary.LittleEndian {
		t.Errorf("DetectOrder: want LittleEndian, got %v", order)
	}
}

func TestDetectOrderSwapped(t *testing.T) {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], Magic)
	order, err := DetectOrder(raw)
	if err != nil {
		t.Fatalf("DetectOrder: unexpected error: %v", err)
	}
	if order != binary.BigEndian {
		t.Errorf("DetectOrder: want BigEndian, got %v", order)
	}
}

func TestDetectOrderBadMagic(t *testing.T) {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], 0xDEADBEEF)
	if _, err := DetectOrder(raw); err == nil {
		t.Errorf("DetectOrder: expected an error for a bad magic value")
	}
}

func TestLeadRecordRoundTrip(t *testing.T) {
	want := &LeadRecord{
		CPUModel:      "Test CPU",
		OSVersion:     "Test OS 1.0",
		InterfaceName: "eth0",
		Nano:          true,
		Filter:        "tcp port 80",
		Snaplen:       65536,
		IPv4: []IPv4Subnet{
			{Addr: [4]byte{192, 168, 1, 1}, Mask: [4]byte{255, 255, 255, 0}},
		},
		IPv6: []IPv6Subnet{
			{Addr: [16]byte{0xfe, 0x80}, PrefixLen: 64},
		},
		HasMAC:       true,
		MAC:          [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		Hardware:     "Intel I350",
		LinkSpeedBps: 1_000_000_000,
		LinkType:     1,
	}

	var buf bytes.Buffer
	if err := WriteLead(&buf, want); err != nil {
		t.Fatalf("WriteLead: unexpected error: %v", err)
	}

	got, err := ReadLead(bufio.NewReader(&buf), binary.LittleEndian)
	if err != nil {
		t.Fatalf("ReadLead: unexpected error: %v", err)
	}

	if got.CPUModel != want.CPUModel || got.OSVersion != want.OSVersion ||
		got.InterfaceName != want.InterfaceName || got.Nano != want.Nano ||
		got.Filter != want.Filter || got.Snaplen != want.Snaplen ||
		got.HasMAC != want.HasMAC || got.MAC != want.MAC ||
		got.Hardware != want.Hardware || got.LinkSpeedBps != want.LinkSpeedBps ||
		got.LinkType != want.LinkType {
		t.Fatalf("ReadLead round trip mismatch: got %+v, want %+v", got, want)
	}
	if len(got.IPv4) != 1 || got.IPv4[0] != want.IPv4[0] {
		t.Errorf("ReadLead: IPv4 mismatch: got %+v", got.IPv4)
	}
	if len(got.IPv6) != 1 || got.IPv6[0] != want.IPv6[0] {
		t.Errorf("ReadLead: IPv6 mismatch: got %+v", got.IPv6)
	}
}

func TestLeadRecordNoMAC(t *testing.T) {
	want := &LeadRecord{CPUModel: "cpu", OSVersion: "os", InterfaceName: "eth0", HasMAC: false}

	var buf bytes.Buffer
	if err := WriteLead(&buf, want); err != nil {
		t.Fatalf("WriteLead: unexpected error: %v", err)
	}
	got, err := ReadLead(bufio.NewReader(&buf), binary.LittleEndian)
	if err != nil {
		t.Fatalf("ReadLead: unexpected error: %v", err)
	}
	if got.HasMAC {
		t.Errorf("ReadLead: expected HasMAC to be false")
	}
}

func TestDecodeRecordPacket(t *testing.T) {
	raw := EncodePacket(PacketHeader{ID: EncodeID(5, false), Secs: 100, Frac: 200, Length: 64, Caplen: 64}, bytes.Repeat([]byte{0xAB}, 64))

	rec, err := DecodeRecord(raw, binary.LittleEndian)
	if err != nil {
		t.Fatalf("DecodeRecord: unexpected error: %v", err)
	}
	if rec.Kind != KindPacket || rec.ID != 5 || rec.Secs != 100 || rec.Frac != 200 || rec.Caplen != 64 {
		t.Errorf("DecodeRecord: unexpected fields: %+v", rec)
	}
	if len(rec.Bytes) != 64 {
		t.Errorf("DecodeRecord: want 64 payload bytes, got %d", len(rec.Bytes))
	}
}

func TestDecodeRecordStats(t *testing.T) {
	raw := EncodeStats(StatsHeader{ID: EncodeID(9, true), Secs: 1, Frac: 2, Recv: 3, IfaceDrops: 4, OSDrops: 5})

	rec, err := DecodeRecord(raw, binary.LittleEndian)
	if err != nil {
		t.Fatalf("DecodeRecord: unexpected error: %v", err)
	}
	if rec.Kind != KindStats || rec.ID != 9 || rec.Recv != 3 || rec.IfaceDrops != 4 || rec.OSDrops != 5 {
		t.Errorf("DecodeRecord: unexpected fields: %+v", rec)
	}
}
