package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// FileStore appends records as JSON lines to a file. Recent reads the whole
// file, so it suits development and small deployments.
type FileStore struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	now    func() time.Time
	closed bool
}

var _ Store = (*FileStore)(nil)

// OpenFileStore opens (or creates) the file at path for appending.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	return &FileStore{path: path, f: f, now: time.Now}, nil
}

// Append writes r as one line.
func (s *FileStore) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r = fill(r, s.now)
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("history: marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("history: write %s: %w", s.path, err)
	}
	return nil
}

// Recent returns the last limit records, newest first. Lines that do not
// decode are skipped.
func (s *FileStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("history: open %s: %w", s.path, err)
	}
	defer f.Close()

	ring := newRecordRing(limit)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			slog.Warn("history: skipping undecodable line", "path", s.path, "line", lineNo, "err", err)
			continue
		}
		ring.push(r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("history: read %s: %w", s.path, err)
	}
	return ring.newestFirst(), nil
}

// recordRing keeps the last cap(buf) records pushed into it.
type recordRing struct {
	buf  []Record
	next int
}

func newRecordRing(size int) *recordRing {
	return &recordRing{buf: make([]Record, 0, size)}
}

func (r *recordRing) push(rec Record) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, rec)
		return
	}
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
}

// newestFirst returns a copy of the held records, most recent first.
func (r *recordRing) newestFirst() []Record {
	out := make([]Record, 0, len(r.buf))
	for i := range len(r.buf) {
		out = append(out, r.buf[(r.next-1-i+2*len(r.buf))%len(r.buf)])
	}
	return out
}

// Close closes the file. Later calls fail with [ErrClosed].
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
