// Package pcapng renders a merged capture stream as a PCAPNG trace:
// one Section Header Block, one Interface Description Block, then an
// Enhanced Packet Block per packet entry and an Interface Statistics
// Block per statistics entry. Option packing and block framing are
// handled here directly rather than through a general-purpose pcapng
// library, because the option set required (IPv4/IPv6/MAC/speed/hardware
// interface options) is wider than what such libraries expose.
package pcapng

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/fastcap/fastcap/internal/capfile"
)

const (
	blockSHB = 0x0A0D0D0A
	blockIDB = 0x00000001
	blockEPB = 0x00000006
	blockISB = 0x00000005

	byteOrderMagic = 0x1A2B3C4D
	shbVersionMajor = 1
	shbVersionMinor = 0

	optShbHardware = 2
	optShbOS       = 3
	optShbUserAppl = 4

	optIfName     = 2
	optIfIPv4Addr = 4
	optIfIPv6Addr = 5
	optIfMACAddr  = 6
	optIfSpeed    = 8
	optIfTsResol  = 9
	optIfFilter   = 11
	optIfOS       = 12
	optIfTsOffset = 14
	optIfHardware = 15

	optIsbIfRecv = 4
	optIsbIfDrop = 5
	optIsbOsDrop = 7
)

// Logger is the narrow logging surface used to report emission progress.
type Logger interface {
	Infof(format string, args ...interface{})
}

// Writer renders a capfile.ReaderSet's merged stream as PCAPNG.
type Writer struct {
	w      io.Writer
	rs     *capfile.ReaderSet
	logger Logger
}

// New returns a Writer that renders rs's merged stream to w.
func New(w io.Writer, rs *capfile.ReaderSet, logger Logger) *Writer {
	return &Writer{w: w, rs: rs, logger: logger}
}

func padLen(n int) int {
	return (4 - n%4) % 4
}

type optionsBuilder struct {
	buf bytes.Buffer
}

func (o *optionsBuilder) add(code uint16, value []byte) {
	binary.Write(&o.buf, binary.LittleEndian, code)
	binary.Write(&o.buf, binary.LittleEndian, uint16(len(value)))
	o.buf.Write(value)
	if pad := padLen(len(value)); pad != 0 {
		o.buf.Write(make([]byte, pad))
	}
}

func (o *optionsBuilder) addString(code uint16, s string) {
	if s == "" {
		return
	}
	o.add(code, []byte(s))
}

func (o *optionsBuilder) end() {
	o.add(0, nil)
}

func writeBlock(w io.Writer, blockType uint32, body []byte) error {
	total := uint32(4 + 4 + len(body) + 4)
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], blockType)
	binary.LittleEndian.PutUint32(hdr[4:], total)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], total)
	_, err := w.Write(trailer[:])
	return err
}

func (pw *Writer) writeSHB() error {
	lead := pw.rs.Lead()

	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, uint32(byteOrderMagic))
	binary.Write(&body, binary.LittleEndian, uint16(shbVersionMajor))
	binary.Write(&body, binary.LittleEndian, uint16(shbVersionMinor))
	binary.Write(&body, binary.LittleEndian, uint64(0xFFFFFFFFFFFFFFFF))

	var opts optionsBuilder
	opts.addString(optShbHardware, lead.CPUModel)
	opts.addString(optShbOS, lead.OSVersion)
	opts.addString(optShbUserAppl, "Fastcap")
	opts.end()
	body.Write(opts.buf.Bytes())

	return writeBlock(pw.w, blockSHB, body.Bytes())
}

func (pw *Writer) writeIDB(startSecs uint64) error {
	lead := pw.rs.Lead()

	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, lead.LinkType)
	binary.Write(&body, binary.LittleEndian, uint16(0)) // reserved
	binary.Write(&body, binary.LittleEndian, uint32(lead.Snaplen))

	var opts optionsBuilder
	opts.addString(optIfName, lead.InterfaceName)
	for _, s := range lead.IPv4 {
		v := make([]byte, 8)
		copy(v[0:4], s.Addr[:])
		copy(v[4:8], s.Mask[:])
		opts.add(optIfIPv4Addr, v)
	}
	for _, s := range lead.IPv6 {
		v := make([]byte, 17)
		copy(v[0:16], s.Addr[:])
		v[16] = s.PrefixLen
		opts.add(optIfIPv6Addr, v)
	}
	if lead.HasMAC {
		opts.add(optIfMACAddr, lead.MAC[:])
	}
	var speed [8]byte
	binary.LittleEndian.PutUint64(speed[:], lead.LinkSpeedBps)
	opts.add(optIfSpeed, speed[:])

	tsresol := byte(6)
	if lead.Nano {
		tsresol = 9
	}
	opts.add(optIfTsResol, []byte{tsresol})

	if lead.Filter != "" {
		opts.add(optIfFilter, append([]byte{0}, []byte(lead.Filter)...))
	}
	opts.addString(optIfOS, lead.OSVersion)

	var tsoffset [8]byte
	binary.LittleEndian.PutUint64(tsoffset[:], startSecs)
	opts.add(optIfTsOffset, tsoffset[:])

	opts.addString(optIfHardware, lead.Hardware)
	opts.end()
	body.Write(opts.buf.Bytes())

	return writeBlock(pw.w, blockIDB, body.Bytes())
}

func ticks(secs, frac, startSecs uint64, nano bool) uint64 {
	scale := uint64(1_000_000)
	if nano {
		scale = 1_000_000_000
	}
	return (secs-startSecs)*scale + frac
}

func splitTimestamp(t uint64) (hi, lo uint32) {
	return uint32(t >> 32), uint32(t & 0xFFFFFFFF)
}

func (pw *Writer) writeEPB(rec capfile.Record, startSecs uint64, nano bool) error {
	hi, lo := splitTimestamp(ticks(rec.Secs, rec.Frac, startSecs, nano))

	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, uint32(0)) // interface ID
	binary.Write(&body, binary.LittleEndian, hi)
	binary.Write(&body, binary.LittleEndian, lo)
	binary.Write(&body, binary.LittleEndian, rec.Caplen)
	binary.Write(&body, binary.LittleEndian, rec.Length)
	body.Write(rec.Bytes)
	if pad := padLen(len(rec.Bytes)); pad != 0 {
		body.Write(make([]byte, pad))
	}

	return writeBlock(pw.w, blockEPB, body.Bytes())
}

func (pw *Writer) writeISB(rec capfile.Record, startSecs uint64, nano bool) error {
	hi, lo := splitTimestamp(ticks(rec.Secs, rec.Frac, startSecs, nano))

	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, uint32(0)) // interface ID
	binary.Write(&body, binary.LittleEndian, hi)
	binary.Write(&body, binary.LittleEndian, lo)

	var opts optionsBuilder
	var recv, ifdrop, osdrop [8]byte
	binary.LittleEndian.PutUint64(recv[:], rec.Recv)
	binary.LittleEndian.PutUint64(ifdrop[:], rec.IfaceDrops)
	binary.LittleEndian.PutUint64(osdrop[:], rec.OSDrops)
	opts.add(optIsbIfRecv, recv[:])
	opts.add(optIsbIfDrop, ifdrop[:])
	opts.add(optIsbOsDrop, osdrop[:])
	opts.end()
	body.Write(opts.buf.Bytes())

	return writeBlock(pw.w, blockISB, body.Bytes())
}

// WriteAll emits the SHB, IDB, and the full merged record stream as EPB
// and ISB blocks. The session start time used for timestamp offsets is
// taken from the first merged record, since that is the earliest instant
// this system actually observed, rather than from an arbitrary shard's
// physical layout.
func (pw *Writer) WriteAll() error {
	first, ok := pw.rs.Next()
	startSecs := uint64(0)
	if ok {
		startSecs = first.Secs
	}

	if err := pw.writeSHB(); err != nil {
		return err
	}
	if err := pw.writeIDB(startSecs); err != nil {
		return err
	}
	if !ok {
		return nil
	}

	nano := pw.rs.Lead().Nano
	var count uint64
	nextLog := time.Now().Add(time.Second)
	emit := func(rec capfile.Record) error {
		var err error
		if rec.Kind == capfile.KindStats {
			err = pw.writeISB(rec, startSecs, nano)
		} else {
			err = pw.writeEPB(rec, startSecs, nano)
			count++
		}
		if err == nil && pw.logger != nil && !time.Now().Before(nextLog) {
			pw.logger.Infof("%d packets written", count)
			nextLog = nextLog.Add(time.Second)
		}
		return err
	}

	if err := emit(first); err != nil {
		return err
	}
	for {
		rec, ok := pw.rs.Next()
		if !ok {
			break
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	if pw.logger != nil {
		pw.logger.Infof("%d packets written", count)
	}
	return nil
}
