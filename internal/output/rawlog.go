package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RawLogMagic opens every raw log. Records follow as
// (unix nanos uint64 LE, length uint32 LE, payload).
const RawLogMagic = "DEPTHRAW"

const rawLogHeaderSize = 12

type RawLogWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(RawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{path: filename, f: f, w: w}, nil
}

func (r *RawLogWriter) Path() string {
	return r.path
}

func (r *RawLogWriter) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	var header [rawLogHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	r.w = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// RawRecord is one entry of a raw log.
type RawRecord struct {
	Timestamp time.Time
	Payload   []byte
}

type RawLogReader struct {
	f *os.File
	r *bufio.Reader
}

// OpenRawLog opens path and checks the magic.
func OpenRawLog(path string) (*RawLogReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw log: %w", err)
	}
	r := bufio.NewReader(f)
	magic := make([]byte, len(RawLogMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != RawLogMagic {
		_ = f.Close()
		return nil, fmt.Errorf("unexpected raw log magic %q", string(magic))
	}
	return &RawLogReader{f: f, r: r}, nil
}

// Next returns the next record, or io.EOF at the end. A truncated trailing
// record is reported as io.ErrUnexpectedEOF once, then io.EOF.
func (r *RawLogReader) Next() (RawRecord, error) {
	var header [rawLogHeaderSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			r.r = bufio.NewReader(eofReader{})
		}
		return RawRecord{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	size := binary.LittleEndian.Uint32(header[8:12])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		r.r = bufio.NewReader(eofReader{})
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return RawRecord{}, err
	}
	return RawRecord{Timestamp: time.Unix(0, ts), Payload: payload}, nil
}

func (r *RawLogReader) Close() error {
	return r.f.Close()
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
