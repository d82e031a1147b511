package capfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader reads one shard's records in order, translating byte order as
// needed. It is driven by ReaderSet and is not safe for concurrent use.
type Reader struct {
	path  string
	file  *os.File
	br    *bufio.Reader
	order binary.ByteOrder

	cur     Record
	hasCur  bool
	exhausted bool
}

func openReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("capfile: %s: read magic: %w", path, err)
	}
	order, err := DetectOrder(magic)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capfile: %s: %w", path, err)
	}

	return &Reader{path: path, file: f, br: br, order: order}, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// peekFirstID returns the first 8 bytes of the first record, which are
// either a lead record's ID (always 0) or a regular entry ID. It reads
// them through bufio.Reader.Peek, which leaves the stream position
// untouched, so the caller can go on to readLead or fill afterward.
func (r *Reader) peekFirstID() (uint64, error) {
	head, err := r.br.Peek(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(head), nil
}

// readLead parses the lead record, which must be the first thing in the
// stream.
func (r *Reader) readLead() (*LeadRecord, error) {
	return ReadLead(r.br, r.order)
}

// fill reads the next record into r.cur if one is not already buffered.
func (r *Reader) fill() error {
	if r.hasCur || r.exhausted {
		return nil
	}

	var rawID uint64
	if err := binary.Read(r.br, r.order, &rawID); err != nil {
		if errors.Is(err, io.EOF) {
			r.exhausted = true
			return nil
		}
		r.exhausted = true
		return nil // truncated tail: treat as end of shard, not an error
	}
	id, isStats := DecodeID(rawID)

	if isStats {
		var secs, frac, recv, ifaceDrops, osDrops uint64
		fields := []*uint64{&secs, &frac, &recv, &ifaceDrops, &osDrops}
		for _, f := range fields {
			if err := binary.Read(r.br, r.order, f); err != nil {
				r.exhausted = true
				return nil
			}
		}
		r.cur = Record{Kind: KindStats, ID: id, Secs: secs, Frac: frac, Recv: recv, IfaceDrops: ifaceDrops, OSDrops: osDrops}
		r.hasCur = true
		return nil
	}

	var secs, frac uint64
	var length, caplen uint32
	if err := binary.Read(r.br, r.order, &secs); err != nil {
		r.exhausted = true
		return nil
	}
	if err := binary.Read(r.br, r.order, &frac); err != nil {
		r.exhausted = true
		return nil
	}
	if err := binary.Read(r.br, r.order, &length); err != nil {
		r.exhausted = true
		return nil
	}
	if err := binary.Read(r.br, r.order, &caplen); err != nil {
		r.exhausted = true
		return nil
	}
	bytes := make([]byte, caplen)
	if _, err := io.ReadFull(r.br, bytes); err != nil {
		r.exhausted = true
		return nil
	}
	r.cur = Record{Kind: KindPacket, ID: id, Secs: secs, Frac: frac, Length: length, Caplen: caplen, Bytes: bytes}
	r.hasCur = true
	return nil
}
