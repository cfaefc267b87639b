package results

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Sink receives output records in dataset order.
type Sink interface {
	Write(ctx context.Context, rec OutputRecord) error
	Close() error
}

// JSONLSink appends one JSON object per line to a file and flushes after
// every record, so an interrupted run leaves only complete lines.
type JSONLSink struct {
	f      *os.File
	w      *bufio.Writer
	enc    *json.Encoder
	closed bool
}

// CreateJSONL truncates or creates path and returns a sink writing to it.
func CreateJSONL(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLSink{f: f, w: w, enc: enc}, nil
}

// Write encodes rec as one line and flushes it to the file.
func (s *JSONLSink) Write(ctx context.Context, rec OutputRecord) error {
	if s.closed {
		return errors.New("write to closed sink")
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record %s: %w", rec.GUID, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush record %s: %w", rec.GUID, err)
	}
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *JSONLSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	return errors.Join(flushErr, closeErr)
}

// MultiSink fans records out to several sinks.
type MultiSink []Sink

// Write writes rec to every sink and joins their errors.
func (m MultiSink) Write(ctx context.Context, rec OutputRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordStore persists encoded records of a run.
type RecordStore interface {
	AppendRecord(ctx context.Context, runID uuid.UUID, seq int, guid string, body json.RawMessage) error
}

// RepoSink writes records to a RecordStore under one run id.
type RepoSink struct {
	store RecordStore
	runID uuid.UUID
	seq   int
}

// NewRepoSink creates a sink for the given run.
func NewRepoSink(store RecordStore, runID uuid.UUID) *RepoSink {
	return &RepoSink{store: store, runID: runID}
}

// Write stores rec with the next sequence number.
func (s *RepoSink) Write(ctx context.Context, rec OutputRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.GUID, err)
	}
	if err := s.store.AppendRecord(ctx, s.runID, s.seq, rec.GUID, body); err != nil {
		return fmt.Errorf("store record %s: %w", rec.GUID, err)
	}
	s.seq++
	return nil
}

// Close is a no-op; the run is finished by its owner.
func (s *RepoSink) Close() error {
	return nil
}

// WriteJSON writes v as indented JSON to path through a temporary file in
// the same directory, replacing path only once the write succeeded.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

var (
	_ Sink = (*JSONLSink)(nil)
	_ Sink = MultiSink(nil)
	_ Sink = (*RepoSink)(nil)
)
