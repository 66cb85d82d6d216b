package tpclog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dreamware/tpckv/internal/kvmessage"
)

// Record is a single write-ahead log entry. Val is only meaningful when
// Type is kvmessage.PutReq.
type Record struct {
	Type kvmessage.Type
	Key  string
	Val  string
}

// Log is an append-only, fsync-disciplined write-ahead log backed by a
// single file. One Log is owned exclusively by a single follower.
type Log struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// Open opens (creating if necessary) the log file inside dir.
func Open(dir string) (*Log, error) {
	path := filepath.Join(dir, "tpc.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tpclog: open %s: %w", path, err)
	}
	return &Log{path: path, f: f}, nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Append writes rec to the log and fsyncs before returning. The caller
// must not consider rec durable (and must not vote or ack) until Append
// returns nil.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	frame := encode(rec)
	if _, err := l.f.Write(frame); err != nil {
		return fmt.Errorf("tpclog: append: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("tpclog: fsync: %w", err)
	}
	return nil
}

// Truncate discards every record and durably marks the log empty.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("tpclog: truncate: %w", err)
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("tpclog: seek after truncate: %w", err)
	}
	return l.f.Sync()
}

// Iterate returns every well-formed record in the log, oldest first. A
// record torn by a crash mid-append (or any corruption after it) stops
// iteration; everything read up to that point is returned without error,
// since a torn tail is an expected crash artifact, not a fault.
func (l *Log) Iterate() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("tpclog: read: %w", err)
	}

	var records []Record
	i := 0
	for i+4 <= len(data) {
		length := binary.BigEndian.Uint32(data[i : i+4])
		if uint64(i)+4+uint64(length) > uint64(len(data)) {
			break // torn tail
		}
		payload := data[i+4 : i+4+int(length)]
		rec, ok := decodePayload(payload)
		if !ok {
			break // corrupt record, treat the rest of the log as unwritten
		}
		records = append(records, rec)
		i += 4 + int(length)
	}
	return records, nil
}

// Latest returns the most recent well-formed record, or false if the log
// is empty (including the case where the only bytes present are a torn
// tail).
func (l *Log) Latest() (Record, bool) {
	records, err := l.Iterate()
	if err != nil || len(records) == 0 {
		return Record{}, false
	}
	return records[len(records)-1], true
}

func encode(rec Record) []byte {
	payload := make([]byte, 1+2+len(rec.Key)+2+len(rec.Val))
	payload[0] = byte(rec.Type)
	binary.BigEndian.PutUint16(payload[1:3], uint16(len(rec.Key)))
	off := 3
	copy(payload[off:], rec.Key)
	off += len(rec.Key)
	binary.BigEndian.PutUint16(payload[off:off+2], uint16(len(rec.Val)))
	off += 2
	copy(payload[off:], rec.Val)

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	copy(frame[4:], payload)
	return frame
}

func decodePayload(payload []byte) (Record, bool) {
	if len(payload) < 1+2+2 {
		return Record{}, false
	}
	typ := kvmessage.Type(payload[0])
	keylen := int(binary.BigEndian.Uint16(payload[1:3]))
	off := 3
	if off+keylen+2 > len(payload) {
		return Record{}, false
	}
	key := string(payload[off : off+keylen])
	off += keylen
	vallen := int(binary.BigEndian.Uint16(payload[off : off+2]))
	off += 2
	if off+vallen > len(payload) {
		return Record{}, false
	}
	val := string(payload[off : off+vallen])
	return Record{Type: typ, Key: key, Val: val}, true
}
