// Package ringbuf implements a fixed-capacity byte ring buffer for a single
// producer and multiple consumers. A producer frames each record with a
// length prefix and commits it; any one consumer may claim the next record
// without blocking the producer. The cursors that hand records between
// producer and consumers are updated with atomics only; Commit and every
// read still take the buffer's mutex briefly to signal waiting consumers,
// and every successful read allocates a new slice for the record it
// returns.
package ringbuf

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// headerSize is the width of the length prefix written ahead of every
// record.
const headerSize = 8

// RingBuffer is safe for one concurrent Prepare/WriteSome/Commit sequence
// and any number of concurrent TryRead/ReadWhile callers.
type RingBuffer struct {
	mem []byte
	cap uint64

	begin   atomic.Int64  // signed; negative means a consumer holds the claim
	end     atomic.Uint64 // producer-published write frontier
	freeEnd atomic.Uint64 // last byte released back to the producer

	writePos uint64
	writeEnd uint64

	mu   sync.Mutex
	cond *sync.Cond

	drops atomic.Uint64
}

// New allocates a ring buffer with the given byte capacity. One byte of
// capacity is permanently reserved to disambiguate full from empty.
func New(capacity uint64) *RingBuffer {
	rb := &RingBuffer{
		mem: make([]byte, capacity),
		cap: capacity,
	}
	rb.freeEnd.Store(capacity - 1)
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

func (rb *RingBuffer) offsetAdd(pos, offset uint64) uint64 {
	pos += offset
	if pos >= rb.cap {
		pos -= rb.cap
	}
	return pos
}

func (rb *RingBuffer) decrement(pos uint64) uint64 {
	if pos == 0 {
		return rb.cap - 1
	}
	return pos - 1
}

func (rb *RingBuffer) distance(start, end uint64) uint64 {
	if end < start {
		return rb.cap - start + end
	}
	return end - start
}

func (rb *RingBuffer) writeImpl(pos uint64, buf []byte) {
	n := uint64(len(buf))
	if pos+n > rb.cap {
		firstLen := rb.cap - pos
		copy(rb.mem[pos:], buf[:firstLen])
		copy(rb.mem[:n-firstLen], buf[firstLen:])
		return
	}
	copy(rb.mem[pos:pos+n], buf)
}

func (rb *RingBuffer) readImpl(pos uint64, buf []byte) {
	n := uint64(len(buf))
	if pos+n > rb.cap {
		firstLen := rb.cap - pos
		copy(buf[:firstLen], rb.mem[pos:])
		copy(buf[firstLen:], rb.mem[:n-firstLen])
		return
	}
	copy(buf, rb.mem[pos:pos+n])
}

// NotifyOneConsumer wakes at most one consumer blocked in ReadWhile. The
// lock is taken around the signal so it cannot land in the window between
// a waiter's predicate check and its cond.Wait call, where the wakeup
// would otherwise be lost.
func (rb *RingBuffer) NotifyOneConsumer() {
	rb.mu.Lock()
	rb.cond.Signal()
	rb.mu.Unlock()
}

// NotifyAllConsumers wakes every consumer blocked in ReadWhile, used on
// shutdown.
func (rb *RingBuffer) NotifyAllConsumers() {
	rb.mu.Lock()
	rb.cond.Broadcast()
	rb.mu.Unlock()
}

// Prepare reserves space for a num_bytes-long record. It reports false if
// the buffer does not currently have room, in which case the caller must
// treat the record as dropped and must not call WriteSome or Commit.
func (rb *RingBuffer) Prepare(numBytes uint64) bool {
	needed := numBytes + headerSize
	end := rb.end.Load()
	freeEnd := rb.freeEnd.Load()
	if needed > rb.distance(end, freeEnd) {
		rb.drops.Add(1)
		return false
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint64(hdr[:], numBytes)
	rb.writeImpl(end, hdr[:])
	rb.writePos = rb.offsetAdd(end, headerSize)
	rb.writeEnd = rb.offsetAdd(rb.writePos, numBytes)
	return true
}

// WriteSome copies buf into the space reserved by the most recent Prepare
// call, advancing the internal write cursor. It may be called more than
// once per Prepare to write a record in pieces.
func (rb *RingBuffer) WriteSome(buf []byte) {
	rb.writeImpl(rb.writePos, buf)
	rb.writePos = rb.offsetAdd(rb.writePos, uint64(len(buf)))
}

// Commit publishes the record reserved by Prepare, making it visible to
// consumers, and wakes one of them.
func (rb *RingBuffer) Commit() {
	rb.end.Store(rb.writeEnd)
	rb.NotifyOneConsumer()
}

// Drops returns the number of Prepare calls that failed for lack of space.
func (rb *RingBuffer) Drops() uint64 {
	return rb.drops.Load()
}

// Capacity returns the buffer's fixed byte capacity.
func (rb *RingBuffer) Capacity() uint64 {
	return rb.cap
}

// TryRead attempts to claim and consume the oldest pending record without
// blocking. It reports false if the buffer is currently empty.
func (rb *RingBuffer) TryRead() ([]byte, bool) {
	var tmpBegin int64 = -1
	for tmpBegin < 0 {
		tmpBegin = rb.begin.Swap(-1)
	}
	begin := uint64(tmpBegin)
	if begin == rb.end.Load() {
		rb.begin.Store(tmpBegin)
		rb.NotifyOneConsumer()
		return nil, false
	}

	var hdr [headerSize]byte
	rb.readImpl(begin, hdr[:])
	length := binary.LittleEndian.Uint64(hdr[:])
	newBegin := rb.offsetAdd(begin, length+headerSize)
	rb.begin.Store(int64(newBegin))
	rb.NotifyOneConsumer()

	buf := make([]byte, length)
	rb.readImpl(rb.offsetAdd(begin, headerSize), buf)

	newEnd := rb.decrement(newBegin)
	expectedEnd := rb.decrement(begin)
	tmpEnd := expectedEnd
	for !rb.freeEnd.CompareAndSwap(tmpEnd, newEnd) {
		tmpEnd = expectedEnd
	}
	return buf, true
}

// Empty reports whether the buffer currently holds no claimable record.
// It is a best-effort snapshot intended for shutdown predicates, not a
// substitute for TryRead's claim protocol.
func (rb *RingBuffer) Empty() bool {
	begin := rb.begin.Load()
	return begin >= 0 && uint64(begin) == rb.end.Load()
}

// ReadWhile blocks until either a record becomes available or pred
// reports false, in which case it returns (nil, false). pred is
// evaluated both with and without the buffer's internal lock held, so it
// must not call RingBuffer methods that take that lock (TryRead, Commit,
// the Notify methods); Empty uses atomics only and is safe to call.
func (rb *RingBuffer) ReadWhile(pred func() bool) ([]byte, bool) {
	if !pred() {
		return nil, false
	}
	for {
		if buf, ok := rb.TryRead(); ok {
			return buf, true
		}

		rb.mu.Lock()
		for {
			begin := rb.begin.Load()
			end := rb.end.Load()
			keepGoing := pred()
			if !keepGoing || (begin >= 0 && uint64(begin) != end) {
				break
			}
			rb.cond.Wait()
		}
		rb.mu.Unlock()

		if !pred() {
			return nil, false
		}
	}
}
