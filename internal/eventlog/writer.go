// Package eventlog provides an append-only JSON-lines log of packet events
package eventlog

import (
	"bufio"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
)

// Writer writes events as JSON lines. Every written event gets the next
// sequence number, and the log's SHA-256 is computed as it is written.
type Writer struct {
	closer io.Closer
	writer *bufio.Writer
	digest hash.Hash
	count  uint64
}

// NewWriter creates a new event log file at the given path
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	w := NewStreamWriter(f)
	w.closer = f
	return w, nil
}

// NewStreamWriter writes the log to an arbitrary stream. Close flushes but
// does not close the stream.
func NewStreamWriter(out io.Writer) *Writer {
	digest := sha256.New()
	return &Writer{
		writer: bufio.NewWriterSize(io.MultiWriter(out, digest), 64*1024),
		digest: digest,
	}
}

// Write appends an event to the log and stamps its SeqNo
func (w *Writer) Write(event *domain.Event) error {
	w.count++
	event.SeqNo = w.count
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	return w.writer.WriteByte('\n')
}

// Close flushes and closes the log
func (w *Writer) Close() error {
	err := w.writer.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Count returns the number of events written
func (w *Writer) Count() uint64 {
	return w.count
}

// Hash returns the hex SHA-256 of everything flushed so far
func (w *Writer) Hash() string {
	return fmt.Sprintf("%x", w.digest.Sum(nil))
}

// Reader reads events from a JSON-lines event log
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewReader opens an event log for reading
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 256*1024), 1024*1024)
	return &Reader{
		file:    f,
		scanner: scanner,
	}, nil
}

// Next reads the next event. Returns nil, io.EOF at end of log
func (r *Reader) Next() (*domain.Event, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var event domain.Event
	if err := json.Unmarshal(r.scanner.Bytes(), &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &event, nil
}

// ReadAll reads all events from the log
func (r *Reader) ReadAll() ([]*domain.Event, error) {
	var events []*domain.Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}

// Close closes the log file
func (r *Reader) Close() error {
	return r.file.Close()
}

// HashFile returns the hex SHA-256 of a file's contents
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}
