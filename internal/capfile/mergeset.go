package capfile

import "fmt"

// Logger is the narrow logging surface ReaderSet needs to report gaps in
// the merged entry ID sequence.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// ReaderSet merges N shard readers into a single stream ordered by entry
// ID, per the spec's linear-scan merge algorithm: shards individually
// increase monotonically, so the minimum pending ID across all shards is
// always the next one to emit.
type ReaderSet struct {
	readers    []*Reader
	lead       *LeadRecord
	expectedID uint64
	logger     Logger
}

// OpenReaderSet opens every shard in paths, locates and parses the lead
// record (exactly one shard must carry it), and primes every reader's
// lookahead.
func OpenReaderSet(paths []string, logger Logger) (*ReaderSet, error) {
	readers := make([]*Reader, 0, len(paths))
	closeAll := func() {
		for _, r := range readers {
			r.Close()
		}
	}

	for _, p := range paths {
		r, err := openReader(p)
		if err != nil {
			closeAll()
			return nil, err
		}
		readers = append(readers, r)
	}

	var lead *LeadRecord
	for _, r := range readers {
		id, err := r.peekFirstID()
		if err != nil {
			continue
		}
		if id == 0 {
			l, err := r.readLead()
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("capfile: %s: parse lead record: %w", r.path, err)
			}
			lead = l
			break
		}
	}
	if lead == nil {
		closeAll()
		return nil, fmt.Errorf("capfile: no shard among %v carried a lead record", paths)
	}

	for _, r := range readers {
		if err := r.fill(); err != nil {
			closeAll()
			return nil, err
		}
	}

	return &ReaderSet{readers: readers, lead: lead, expectedID: 1, logger: logger}, nil
}

// Lead returns the session metadata parsed from shard 0.
func (rs *ReaderSet) Lead() *LeadRecord {
	return rs.lead
}

// Next returns the next record in entry-ID order, or false once every
// shard is exhausted. Gaps in the ID sequence are logged as warnings and
// skipped rather than treated as failures.
func (rs *ReaderSet) Next() (Record, bool) {
	for {
		for _, r := range rs.readers {
			if r.hasCur && r.cur.ID == rs.expectedID {
				rec := r.cur
				r.hasCur = false
				r.fill()
				rs.expectedID++
				return rec, true
			}
		}

		anyAlive := false
		for _, r := range rs.readers {
			if !r.exhausted {
				anyAlive = true
				break
			}
		}
		if !anyAlive {
			return Record{}, false
		}

		if rs.logger != nil {
			rs.logger.Warnf("capfile: missing entry ID %d, skipping", rs.expectedID)
		}
		rs.expectedID++
	}
}

// Close closes every underlying shard file.
func (rs *ReaderSet) Close() error {
	var firstErr error
	for _, r := range rs.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
