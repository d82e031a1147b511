package capfile

import (
	"path/filepath"
	"testing"
)

type testLogger struct {
	warnings []string
}

func (l *testLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, format)
}

func newLead() *LeadRecord {
	return &LeadRecord{
		CPUModel:      "Test CPU",
		OSVersion:     "Test OS",
		InterfaceName: "eth0",
		Nano:          false,
		Filter:        "",
		Snaplen:       1518,
		LinkType:      1,
	}
}

func TestWriterSetSingleShardEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cap")

	ws, err := NewWriterSet(path, 1, 4096, newLead())
	if err != nil {
		t.Fatalf("NewWriterSet: unexpected error: %v", err)
	}

	ws.IngestPacket(1000, 0, 64, 64, make([]byte, 64))
	ws.IngestPacket(1000, 1, 128, 128, make([]byte, 128))
	ws.IngestPacket(1000, 2, 64, 64, make([]byte, 64))
	ws.IngestStats(1000, 3, 10, 1, 0)

	if err := ws.Join(); err != nil {
		t.Fatalf("Join: unexpected error: %v", err)
	}

	logger := &testLogger{}
	rs, err := OpenReaderSet([]string{path}, logger)
	if err != nil {
		t.Fatalf("OpenReaderSet: unexpected error: %v", err)
	}
	defer rs.Close()

	if rs.Lead().InterfaceName != "eth0" {
		t.Errorf("Lead: want interface eth0, got %q", rs.Lead().InterfaceName)
	}

	var gotIDs []uint64
	var kinds []RecordKind
	for {
		rec, ok := rs.Next()
		if !ok {
			break
		}
		gotIDs = append(gotIDs, rec.ID)
		kinds = append(kinds, rec.Kind)
	}

	wantIDs := []uint64{1, 2, 3, 4}
	if len(gotIDs) != len(wantIDs) {
		t.Fatalf("Next: want %d records, got %d (%v)", len(wantIDs), len(gotIDs), gotIDs)
	}
	for i, id := range wantIDs {
		if gotIDs[i] != id {
			t.Errorf("Next: record %d: want ID %d, got %d", i, id, gotIDs[i])
		}
	}
	if kinds[3] != KindStats {
		t.Errorf("Next: want the final record to be a stats record, got kind %v", kinds[3])
	}
	if len(logger.warnings) != 0 {
		t.Errorf("OpenReaderSet/Next: expected no gap warnings, got %v", logger.warnings)
	}
}

func TestWriterSetMultiShard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cap")

	ws, err := NewWriterSet(path, 4, 1<<16, newLead())
	if err != nil {
		t.Fatalf("NewWriterSet: unexpected error: %v", err)
	}

	const total = 200
	for i := 0; i < total; i++ {
		ws.IngestPacket(1000, uint64(i), 32, 32, make([]byte, 32))
	}
	if err := ws.Join(); err != nil {
		t.Fatalf("Join: unexpected error: %v", err)
	}

	paths := make([]string, 4)
	for i := range paths {
		paths[i] = ShardName(path, i, 4)
	}

	rs, err := OpenReaderSet(paths, nil)
	if err != nil {
		t.Fatalf("OpenReaderSet: unexpected error: %v", err)
	}
	defer rs.Close()

	seen := map[uint64]bool{}
	count := 0
	var lastID uint64
	for {
		rec, ok := rs.Next()
		if !ok {
			break
		}
		if rec.ID <= lastID && count > 0 {
			t.Fatalf("Next: merged IDs are not strictly increasing: %d after %d", rec.ID, lastID)
		}
		lastID = rec.ID
		seen[rec.ID] = true
		count++
	}
	if count != total {
		t.Fatalf("Next: want %d records, got %d", total, count)
	}
	for i := 1; i <= total; i++ {
		if !seen[uint64(i)] {
			t.Errorf("Next: missing entry ID %d", i)
		}
	}
}
