package kvstore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dreamware/tpckv/internal/kvmessage"
	"github.com/dreamware/tpckv/internal/ring"
)

// Store is a crash-safe, file-backed key-value store. One Store is owned
// exclusively by a single follower.
type Store struct {
	dir string

	mu    sync.RWMutex
	index map[string]string // key -> value, a cache over the directory scan
}

// Open opens (creating if necessary) a Store backed by dir, recovering its
// in-memory index by scanning the directory for existing entries.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: create store dir: %w", err)
	}
	s := &Store{dir: dir, index: make(map[string]string)}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuild() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("kvstore: scan store dir: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) == ".tmp" {
			continue
		}
		if _, err := hex.DecodeString(ent.Name()); err != nil || len(ent.Name()) != 16 {
			// Not a canonical entry name, e.g. the follower's log file,
			// which shares this directory.
			continue
		}
		key, val, err := readEntry(filepath.Join(s.dir, ent.Name()))
		if err != nil {
			// A partially-written file left over from a crash: skip it,
			// the leader's retry-until-ack protocol means no durable
			// write is ever acknowledged without completing its rename.
			continue
		}
		s.index[key] = val
	}
	return nil
}

func filename(dir, key string) string {
	h := ring.Hash64(key)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return filepath.Join(dir, hex.EncodeToString(buf[:]))
}

func readEntry(path string) (key, val string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	if len(data) < 4 {
		return "", "", fmt.Errorf("kvstore: truncated entry %s", path)
	}
	klen := binary.BigEndian.Uint32(data[0:4])
	if uint32(len(data)) < 4+klen+4 {
		return "", "", fmt.Errorf("kvstore: truncated entry %s", path)
	}
	key = string(data[4 : 4+klen])
	vlenOff := 4 + klen
	vlen := binary.BigEndian.Uint32(data[vlenOff : vlenOff+4])
	valOff := vlenOff + 4
	if uint32(len(data)) < valOff+vlen {
		return "", "", fmt.Errorf("kvstore: truncated entry %s", path)
	}
	val = string(data[valOff : valOff+vlen])
	return key, val, nil
}

func encodeEntry(key, val string) []byte {
	buf := make([]byte, 4+len(key)+4+len(val))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(key)))
	copy(buf[4:], key)
	off := 4 + len(key)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(val)))
	copy(buf[off+4:], val)
	return buf
}

// PutCheck validates that (key, value) may be written, without mutating
// the store.
func (s *Store) PutCheck(key, val string) error {
	if err := kvmessage.ValidateKey(key); err != nil {
		return err
	}
	if err := kvmessage.ValidateValue(val); err != nil {
		return err
	}
	return nil
}

// DelCheck validates that key may be deleted, without mutating the store.
func (s *Store) DelCheck(key string) error {
	if err := kvmessage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.index[key]; !ok {
		return kvmessage.ErrNoKey
	}
	return nil
}

// Get returns the value stored for key, or kvmessage.ErrNoKey if absent.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.index[key]
	if !ok {
		return "", kvmessage.ErrNoKey
	}
	return val, nil
}

// Put writes (key, value) durably: a temp file is written and fsynced,
// then renamed over the canonical file. Put runs PutCheck first and
// returns its error without writing anything; callers (the follower
// state machine) also validate before logging.
func (s *Store) Put(key, val string) error {
	if err := s.PutCheck(key, val); err != nil {
		return err
	}

	final := filename(s.dir, key)
	tmp := final + ".tmp"
	if err := writeAndRename(tmp, final, encodeEntry(key, val)); err != nil {
		return fmt.Errorf("kvstore: put %q: %w", key, err)
	}

	s.mu.Lock()
	s.index[key] = val
	s.mu.Unlock()
	return nil
}

// Del removes key from the store. Del itself does not run DelCheck.
func (s *Store) Del(key string) error {
	final := filename(s.dir, key)
	if err := os.Remove(final); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("kvstore: del %q: %w", key, err)
	}

	s.mu.Lock()
	delete(s.index, key)
	s.mu.Unlock()
	return nil
}

// List returns every key currently present in the store.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	return keys
}

// Dir returns the directory this store is backed by.
func (s *Store) Dir() string {
	return s.dir
}

func writeAndRename(tmpPath, finalPath string, data []byte) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
