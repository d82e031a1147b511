package capfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fastcap/fastcap/internal/ringbuf"
)

// Writer owns one shard's file handle and drains the shared ring buffer
// into it until the set is told to stop.
type Writer struct {
	file *os.File
	set  *WriterSet
}

// WriterSet owns the shared ring buffer, the output shard files, and the
// writer goroutines draining them. It assigns entry IDs to every admitted
// record, so IngestPacket and IngestStats must only be called from a
// single producer.
type WriterSet struct {
	rb      *ringbuf.RingBuffer
	writers []*Writer
	stop    atomic.Bool
	nextID  uint64 // producer-owned, no synchronization needed
	wg      sync.WaitGroup
}

// NewWriterSet creates the output shard files named by ShardName against
// outputPath, writes the magic to each and the lead record to shard 0,
// then launches one writer goroutine per shard. bufferBytes sizes the
// shared ring buffer.
func NewWriterSet(outputPath string, numShards int, bufferBytes uint64, lead *LeadRecord) (*WriterSet, error) {
	if numShards < 1 {
		return nil, fmt.Errorf("capfile: numShards must be >= 1, got %d", numShards)
	}

	files := make([]*os.File, numShards)
	for i := 0; i < numShards; i++ {
		f, err := os.Create(ShardName(outputPath, i, numShards))
		if err != nil {
			for _, opened := range files[:i] {
				opened.Close()
			}
			return nil, fmt.Errorf("capfile: create shard %d: %w", i, err)
		}
		files[i] = f
	}

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], Magic)
	for i, f := range files {
		if _, err := f.Write(magic[:]); err != nil {
			return nil, fmt.Errorf("capfile: write magic to shard %d: %w", i, err)
		}
	}

	if err := WriteLead(files[0], lead); err != nil {
		return nil, fmt.Errorf("capfile: write lead record: %w", err)
	}

	ws := &WriterSet{
		rb:     ringbuf.New(bufferBytes),
		nextID: 1, // entry ID 0 belongs to the lead record
	}
	ws.writers = make([]*Writer, numShards)
	for i, f := range files {
		w := &Writer{file: f, set: ws}
		ws.writers[i] = w
		ws.wg.Add(1)
		go w.work()
	}
	return ws, nil
}

// IngestPacket admits a packet into the ring buffer, assigning it the
// next entry ID. It never blocks; if the buffer is full the packet is
// silently dropped and counted in Drops.
func (ws *WriterSet) IngestPacket(secs, frac uint64, length, caplen uint32, bytes []byte) {
	buf := EncodePacket(PacketHeader{
		ID:     EncodeID(ws.nextID, false),
		Secs:   secs,
		Frac:   frac,
		Length: length,
		Caplen: caplen,
	}, bytes)
	if ws.rb.Prepare(uint64(len(buf))) {
		ws.rb.WriteSome(buf)
		ws.rb.Commit()
		ws.nextID++
	}
}

// IngestStats admits a statistics snapshot into the ring buffer. Like
// IngestPacket, it never blocks and silently drops on overflow.
func (ws *WriterSet) IngestStats(secs, frac, recv, ifaceDrops, osDrops uint64) {
	buf := EncodeStats(StatsHeader{
		ID:         EncodeID(ws.nextID, true),
		Secs:       secs,
		Frac:       frac,
		Recv:       recv,
		IfaceDrops: ifaceDrops,
		OSDrops:    osDrops,
	})
	if ws.rb.Prepare(uint64(len(buf))) {
		ws.rb.WriteSome(buf)
		ws.rb.Commit()
		ws.nextID++
	}
}

// Drops returns the number of records dropped for lack of ring buffer
// space since the set was created.
func (ws *WriterSet) Drops() uint64 {
	return ws.rb.Drops()
}

// Join signals every writer to stop once it has drained the buffer, waits
// for them to exit, and closes their files.
func (ws *WriterSet) Join() error {
	ws.stop.Store(true)
	ws.rb.NotifyAllConsumers()
	ws.wg.Wait()

	var firstErr error
	for _, w := range ws.writers {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *Writer) work() {
	defer w.set.wg.Done()
	for {
		buf, ok := w.set.rb.ReadWhile(func() bool {
			return !w.set.stop.Load() || !w.set.rb.Empty()
		})
		if !ok {
			return
		}
		if _, err := w.file.Write(buf); err != nil {
			return
		}
	}
}
