package capfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// writeRawShard builds a shard file by hand so a gap can be introduced
// into the entry ID sequence, which NewWriterSet's own sequential ID
// assignment cannot produce.
func writeRawShard(t *testing.T, path string, lead *LeadRecord, ids []uint64) {
	t.Helper()

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, Magic); err != nil {
		t.Fatalf("write magic: %v", err)
	}
	if lead != nil {
		if err := WriteLead(&buf, lead); err != nil {
			t.Fatalf("WriteLead: %v", err)
		}
	}
	for _, id := range ids {
		hdr := PacketHeader{ID: EncodeID(id, false), Secs: 1000, Frac: id, Length: 8, Caplen: 8}
		buf.Write(EncodePacket(hdr, make([]byte, 8)))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestReaderSetWarnsAndSkipsOnGap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gap.cap")
	writeRawShard(t, path, newLead(), []uint64{1, 3, 4})

	logger := &testLogger{}
	rs, err := OpenReaderSet([]string{path}, logger)
	if err != nil {
		t.Fatalf("OpenReaderSet: unexpected error: %v", err)
	}
	defer rs.Close()

	var gotIDs []uint64
	for {
		rec, ok := rs.Next()
		if !ok {
			break
		}
		gotIDs = append(gotIDs, rec.ID)
	}

	want := []uint64{1, 3, 4}
	if len(gotIDs) != len(want) {
		t.Fatalf("Next: want %d records, got %d (%v)", len(want), len(gotIDs), gotIDs)
	}
	for i, id := range want {
		if gotIDs[i] != id {
			t.Errorf("Next: record %d: want ID %d, got %d", i, id, gotIDs[i])
		}
	}
	if len(logger.warnings) != 1 {
		t.Fatalf("Next: want exactly one gap warning, got %v", logger.warnings)
	}
}

func TestOpenReaderSetErrorsWithoutLeadRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nolead.cap")
	writeRawShard(t, path, nil, []uint64{1, 2})

	if _, err := OpenReaderSet([]string{path}, nil); err == nil {
		t.Fatal("OpenReaderSet: want error when no shard carries a lead record")
	}
}
