package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// JSONLStore keeps one {"name": "summary"} object per line. Each Append is a
// single write followed by fsync, so a crash can at worst leave one partial
// final line, which the next open discards.
type JSONLStore struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	entries map[string]string
}

// OpenJSONL opens or creates the file at path and reads its records.
func OpenJSONL(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open summaries: %w", err)
	}
	s := &JSONLStore{path: path, f: f, entries: make(map[string]string)}
	if err := s.recover(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// recover reads all complete records and truncates a torn trailing record.
// A final record that parses but lacks its newline is kept and terminated.
func (s *JSONLStore) recover() error {
	data, err := io.ReadAll(s.f)
	if err != nil {
		return fmt.Errorf("read summaries: %w", err)
	}
	valid := 0
	for off := 0; off < len(data); {
		nl := bytes.IndexByte(data[off:], '\n')
		if nl < 0 {
			if s.keepTail(data[off:]) {
				if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
					return err
				}
				if _, err := s.f.Write([]byte{'\n'}); err != nil {
					return fmt.Errorf("terminate final record: %w", err)
				}
				if err := s.f.Sync(); err != nil {
					return fmt.Errorf("sync summaries: %w", err)
				}
				return nil
			}
			log.Warn().Str("path", s.path).Int("bytes", len(data)-off).Msg("discarding partial trailing summary record")
			break
		}
		line := bytes.TrimSpace(data[off : off+nl])
		off += nl + 1
		valid = off
		if len(line) == 0 {
			continue
		}
		var rec map[string]string
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("parse %s: %w", s.path, err)
		}
		for name, summary := range rec {
			s.entries[name] = summary
		}
	}
	if valid < len(data) {
		if err := s.f.Truncate(int64(valid)); err != nil {
			return fmt.Errorf("truncate partial record: %w", err)
		}
	}
	_, err = s.f.Seek(int64(valid), io.SeekStart)
	return err
}

// keepTail records an unterminated final line if it is a complete record.
func (s *JSONLStore) keepTail(tail []byte) bool {
	tail = bytes.TrimSpace(tail)
	if len(tail) == 0 {
		return false
	}
	var rec map[string]string
	if err := json.Unmarshal(tail, &rec); err != nil {
		return false
	}
	for name, summary := range rec {
		s.entries[name] = summary
	}
	return true
}

func (s *JSONLStore) Load(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *JSONLStore) Append(_ context.Context, name, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicate)
	}
	line, err := json.Marshal(map[string]string{name: summary})
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("write summary %s: %w", name, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync summaries: %w", err)
	}
	s.entries[name] = summary
	return nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadJSONL returns the records of a summaries file in file order without
// opening it for writing.
func ReadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]string
		if err := json.Unmarshal(line, &rec); err != nil {
			return out, fmt.Errorf("parse %s: %w", path, err)
		}
		for name, summary := range rec {
			out = append(out, Record{Name: name, Summary: summary})
		}
	}
	return out, sc.Err()
}

// Record is one persisted summary.
type Record struct {
	Name    string
	Summary string
}
