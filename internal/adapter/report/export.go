package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// EmbeddingLine is one pair in an embedding export.
type EmbeddingLine struct {
	Pair    int       `json:"pair"`
	Genuine bool      `json:"genuine"`
	A       string    `json:"a"`
	B       string    `json:"b"`
	EmbA    []float32 `json:"emb_a,omitempty"`
	EmbB    []float32 `json:"emb_b,omitempty"`
	// CodesA and CodesB replace the embeddings in quantized exports.
	CodesA []uint16 `json:"codes_a,omitempty"`
	CodesB []uint16 `json:"codes_b,omitempty"`
}

// Export is an open JSON-lines export file.
type Export struct {
	Path string
	file *os.File
	buf  *bufio.Writer
	zw   *zstd.Encoder
	enc  *json.Encoder
}

// CreateExport creates dir/name, appending ".zst" and compressing when
// compress is set.
func CreateExport(dir, name string, compress bool) (*Export, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if compress {
		path += ".zst"
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export: %w", err)
	}

	e := &Export{Path: path, file: f, buf: bufio.NewWriter(f)}
	var w io.Writer = e.buf
	if compress {
		zw, err := zstd.NewWriter(e.buf)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		e.zw = zw
		w = zw
	}
	e.enc = json.NewEncoder(w)
	return e, nil
}

// Write appends one line.
func (e *Export) Write(line EmbeddingLine) error {
	return e.enc.Encode(line)
}

// Close flushes and closes the export.
func (e *Export) Close() error {
	var firstErr error
	if e.zw != nil {
		firstErr = e.zw.Close()
	}
	if err := e.buf.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ReadExport decodes an export written by CreateExport.
func ReadExport(path string) ([]EmbeddingLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var lines []EmbeddingLine
	dec := json.NewDecoder(r)
	for dec.More() {
		var l EmbeddingLine
		if err := dec.Decode(&l); err != nil {
			return nil, fmt.Errorf("failed to decode export line %d: %w", len(lines)+1, err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}
