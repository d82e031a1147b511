// Package capfile implements the on-disk capture file format: the 4-byte
// magic, the once-per-session lead metadata record, and the packet and
// statistics records that follow it. It also implements the writer pool
// that fans a live capture out across N file shards and the reader set
// that merges those shards back into entry-ID order.
package capfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the 4-byte value written at offset 0 of every shard. Writers
// always encode it, and every other multi-byte field, little-endian,
// whatever the producing host's byte order.
const Magic uint32 = 0x46434150

// statsBit marks an entry ID as a statistics record rather than a packet
// record.
const statsBit = uint64(1) << 63

// EncodeID folds the statistics-kind flag into an entry ID for on-disk
// representation.
func EncodeID(id uint64, isStats bool) uint64 {
	if isStats {
		return id | statsBit
	}
	return id
}

// DecodeID splits an on-disk entry ID into its sequence number and kind.
func DecodeID(raw uint64) (id uint64, isStats bool) {
	return raw &^ statsBit, raw&statsBit != 0
}

// DetectOrder inspects the raw 4 magic bytes and returns the byte order
// that must be used to decode every subsequent multi-byte field, or an
// error if the bytes match neither the little-endian nor the big-endian
// encoding of Magic.
func DetectOrder(raw [4]byte) (binary.ByteOrder, error) {
	if binary.LittleEndian.Uint32(raw[:]) == Magic {
		return binary.LittleEndian, nil
	}
	if binary.BigEndian.Uint32(raw[:]) == Magic {
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("capfile: bad magic %x", raw)
}

// IPv4Subnet is one IPv4 address/mask pair carried in the lead record.
type IPv4Subnet struct {
	Addr [4]byte
	Mask [4]byte
}

// IPv6Subnet is one IPv6 address/prefix-length pair carried in the lead
// record.
type IPv6Subnet struct {
	Addr      [16]byte
	PrefixLen uint8
}

// LeadRecord is the once-per-session metadata record written at the start
// of shard 0, before any packet or statistics record.
type LeadRecord struct {
	CPUModel      string
	OSVersion     string
	InterfaceName string
	Nano          bool
	Filter        string
	Snaplen       int32
	IPv4          []IPv4Subnet
	IPv6          []IPv6Subnet
	HasMAC        bool
	MAC           [6]byte
	Hardware      string
	LinkSpeedBps  uint64
	LinkType      uint16
}

func writeCString(w io.Writer, s string) error {
	_, err := w.Write(append([]byte(s), 0))
	return err
}

func readCString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

// WriteLead serializes a lead record, including its entry ID 0, to w.
func WriteLead(w io.Writer, lead *LeadRecord) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(0)); err != nil {
		return err
	}
	if err := writeCString(w, lead.CPUModel); err != nil {
		return err
	}
	if err := writeCString(w, lead.OSVersion); err != nil {
		return err
	}
	if err := writeCString(w, lead.InterfaceName); err != nil {
		return err
	}
	nano := byte(0)
	if lead.Nano {
		nano = 1
	}
	if _, err := w.Write([]byte{nano}); err != nil {
		return err
	}
	if err := writeCString(w, lead.Filter); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, lead.Snaplen); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(lead.IPv4))); err != nil {
		return err
	}
	for _, s := range lead.IPv4 {
		if _, err := w.Write(s.Addr[:]); err != nil {
			return err
		}
		if _, err := w.Write(s.Mask[:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(lead.IPv6))); err != nil {
		return err
	}
	for _, s := range lead.IPv6 {
		if _, err := w.Write(s.Addr[:]); err != nil {
			return err
		}
		if _, err := w.Write([]byte{s.PrefixLen}); err != nil {
			return err
		}
	}
	hasMAC := byte(0)
	if lead.HasMAC {
		hasMAC = 1
	}
	if _, err := w.Write([]byte{hasMAC}); err != nil {
		return err
	}
	if lead.HasMAC {
		if _, err := w.Write(lead.MAC[:]); err != nil {
			return err
		}
	}
	if err := writeCString(w, lead.Hardware); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, lead.LinkSpeedBps); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, lead.LinkType)
}

// ReadLead parses a lead record, including its leading entry-ID field,
// which must equal 0.
func ReadLead(r *bufio.Reader, order binary.ByteOrder) (*LeadRecord, error) {
	var rawID uint64
	if err := binary.Read(r, order, &rawID); err != nil {
		return nil, err
	}
	if rawID != 0 {
		return nil, fmt.Errorf("capfile: lead record has non-zero entry ID %d", rawID)
	}

	lead := &LeadRecord{}
	var err error
	if lead.CPUModel, err = readCString(r); err != nil {
		return nil, err
	}
	if lead.OSVersion, err = readCString(r); err != nil {
		return nil, err
	}
	if lead.InterfaceName, err = readCString(r); err != nil {
		return nil, err
	}
	nano, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	lead.Nano = nano != 0
	if lead.Filter, err = readCString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, order, &lead.Snaplen); err != nil {
		return nil, err
	}
	var ipv4Count uint32
	if err := binary.Read(r, order, &ipv4Count); err != nil {
		return nil, err
	}
	lead.IPv4 = make([]IPv4Subnet, ipv4Count)
	for i := range lead.IPv4 {
		if _, err := io.ReadFull(r, lead.IPv4[i].Addr[:]); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, lead.IPv4[i].Mask[:]); err != nil {
			return nil, err
		}
	}
	var ipv6Count uint32
	if err := binary.Read(r, order, &ipv6Count); err != nil {
		return nil, err
	}
	lead.IPv6 = make([]IPv6Subnet, ipv6Count)
	for i := range lead.IPv6 {
		if _, err := io.ReadFull(r, lead.IPv6[i].Addr[:]); err != nil {
			return nil, err
		}
		prefixLen, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		lead.IPv6[i].PrefixLen = prefixLen
	}
	hasMAC, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	lead.HasMAC = hasMAC != 0
	if lead.HasMAC {
		if _, err := io.ReadFull(r, lead.MAC[:]); err != nil {
			return nil, err
		}
	}
	if lead.Hardware, err = readCString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, order, &lead.LinkSpeedBps); err != nil {
		return nil, err
	}
	if err := binary.Read(r, order, &lead.LinkType); err != nil {
		return nil, err
	}
	return lead, nil
}

// PacketHeader is the fixed-width prefix of a packet record, followed by
// Caplen bytes of packet data.
type PacketHeader struct {
	ID      uint64
	Secs    uint64
	Frac    uint64
	Length  uint32
	Caplen  uint32
}

// EncodePacket renders a packet record (header plus payload) in
// little-endian byte order for appending to the ring buffer.
func EncodePacket(hdr PacketHeader, bytes []byte) []byte {
	buf := make([]byte, 8+8+8+4+4+len(bytes))
	binary.LittleEndian.PutUint64(buf[0:], hdr.ID)
	binary.LittleEndian.PutUint64(buf[8:], hdr.Secs)
	binary.LittleEndian.PutUint64(buf[16:], hdr.Frac)
	binary.LittleEndian.PutUint32(buf[24:], hdr.Length)
	binary.LittleEndian.PutUint32(buf[28:], hdr.Caplen)
	copy(buf[32:], bytes)
	return buf
}

// StatsHeader is the fixed-width body of a statistics record.
type StatsHeader struct {
	ID         uint64
	Secs       uint64
	Frac       uint64
	Recv       uint64
	IfaceDrops uint64
	OSDrops    uint64
}

// EncodeStats renders a statistics record in little-endian byte order for
// appending to the ring buffer.
func EncodeStats(hdr StatsHeader) []byte {
	buf := make([]byte, 8*6)
	binary.LittleEndian.PutUint64(buf[0:], hdr.ID)
	binary.LittleEndian.PutUint64(buf[8:], hdr.Secs)
	binary.LittleEndian.PutUint64(buf[16:], hdr.Frac)
	binary.LittleEndian.PutUint64(buf[24:], hdr.Recv)
	binary.LittleEndian.PutUint64(buf[32:], hdr.IfaceDrops)
	binary.LittleEndian.PutUint64(buf[40:], hdr.OSDrops)
	return buf
}

// RecordKind distinguishes the two on-disk record variants.
type RecordKind int

const (
	KindPacket RecordKind = iota
	KindStats
)

// Record is a decoded packet or statistics entry read back from a shard.
// Only the fields for its Kind are meaningful.
type Record struct {
	Kind    RecordKind
	ID      uint64
	Secs    uint64
	Frac    uint64
	Length  uint32
	Caplen  uint32
	Bytes   []byte
	Recv    uint64
	IfaceDrops uint64
	OSDrops    uint64
}

// DecodeRecord parses a single packet or statistics record from raw,
// which must have been produced by EncodePacket or EncodeStats and may
// need byte-swapping per order.
func DecodeRecord(raw []byte, order binary.ByteOrder) (Record, error) {
	if len(raw) < 8 {
		return Record{}, fmt.Errorf("capfile: record too short: %d bytes", len(raw))
	}
	rawID := order.Uint64(raw[0:8])
	id, isStats := DecodeID(rawID)
	if isStats {
		if len(raw) < 48 {
			return Record{}, fmt.Errorf("capfile: stats record too short: %d bytes", len(raw))
		}
		return Record{
			Kind:       KindStats,
			ID:         id,
			Secs:       order.Uint64(raw[8:16]),
			Frac:       order.Uint64(raw[16:24]),
			Recv:       order.Uint64(raw[24:32]),
			IfaceDrops: order.Uint64(raw[32:40]),
			OSDrops:    order.Uint64(raw[40:48]),
		}, nil
	}
	if len(raw) < 32 {
		return Record{}, fmt.Errorf("capfile: packet record too short: %d bytes", len(raw))
	}
	caplen := order.Uint32(raw[28:32])
	if len(raw) < 32+int(caplen) {
		return Record{}, fmt.Errorf("capfile: packet record truncated: want %d caplen bytes, have %d", caplen, len(raw)-32)
	}
	return Record{
		Kind:   KindPacket,
		ID:     id,
		Secs:   order.Uint64(raw[8:16]),
		Frac:   order.Uint64(raw[16:24]),
		Length: order.Uint32(raw[24:28]),
		Caplen: caplen,
		Bytes:  raw[32 : 32+int(caplen)],
	}, nil
}
