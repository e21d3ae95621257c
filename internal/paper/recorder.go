package paper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"stratengine/internal/signal"
)

// JSONLRecorder appends fills as JSON lines for later analysis. Writes are buffered; Close flushes.
type JSONLRecorder struct {
	mu   sync.Mutex
	log  zerolog.Logger
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewJSONLRecorder creates or opens path for appending.
func NewJSONLRecorder(path string, log zerolog.Logger) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder open: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &JSONLRecorder{
		log:  log.With().Str("path", path).Logger(),
		file: file,
		buf:  buf,
		enc:  json.NewEncoder(buf),
	}, nil
}

// Record writes one fill. Encoding failures are logged, never returned.
func (r *JSONLRecorder) Record(fill signal.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if err := r.enc.Encode(fill); err != nil {
		r.log.Warn().Err(err).Str("fill", fill.FillID).Msg("record fill")
	}
}

// Flush pushes buffered lines to the file.
func (r *JSONLRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.buf.Flush()
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	flushErr := r.buf.Flush()
	err := r.file.Close()
	r.file = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}

// MultiRecorder fans a fill out to several recorders.
type MultiRecorder []FillRecorder

func (m MultiRecorder) Record(fill signal.Fill) {
	for _, r := range m {
		r.Record(fill)
	}
}
