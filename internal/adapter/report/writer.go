// Package report renders result rows as semicolon-separated CSV or JSON lines
// and writes embedding exports, optionally zstd-compressed.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case CSV, "":
		return CSV, nil
	case JSON:
		return JSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q, possible values: csv, json", s)
	}
}

// NewRunID returns a fresh identifier for one invocation.
func NewRunID() string {
	return uuid.NewString()
}

// Writer emits one table of results. Call Header once, then Row per line.
type Writer struct {
	format  Format
	runID   string
	columns []string
	csv     *csv.Writer
	enc     *json.Encoder
}

func NewWriter(w io.Writer, format Format, runID string) *Writer {
	out := &Writer{format: format, runID: runID}
	if format == JSON {
		out.enc = json.NewEncoder(w)
	} else {
		out.csv = csv.NewWriter(w)
		out.csv.Comma = ';'
	}
	return out
}

func (w *Writer) Header(columns ...string) error {
	w.columns = columns
	if w.csv != nil {
		return w.csv.Write(columns)
	}
	return nil
}

// Row writes one line. values align with the header columns.
func (w *Writer) Row(values ...any) error {
	if len(values) != len(w.columns) {
		return fmt.Errorf("row has %d values for %d columns", len(values), len(w.columns))
	}

	if w.csv != nil {
		fields := make([]string, len(values))
		for i, v := range values {
			fields[i] = formatValue(v)
		}
		return w.csv.Write(fields)
	}

	obj := make(map[string]any, len(values)+1)
	if w.runID != "" {
		obj["run"] = w.runID
	}
	for i, v := range values {
		obj[w.columns[i]] = v
	}
	return w.enc.Encode(obj)
}

// Comment writes a free-form line. CSV output prefixes it with '#'; JSON
// output emits {"note": ...}.
func (w *Writer) Comment(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if w.csv != nil {
		return w.csv.Write([]string{"# " + msg})
	}
	obj := map[string]any{"note": msg}
	if w.runID != "" {
		obj["run"] = w.runID
	}
	return w.enc.Encode(obj)
}

func (w *Writer) Flush() error {
	if w.csv != nil {
		w.csv.Flush()
		return w.csv.Error()
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case []int:
		parts := make([]string, len(x))
		for i, d := range x {
			parts[i] = strconv.Itoa(d)
		}
		return strings.Join(parts, ",")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
