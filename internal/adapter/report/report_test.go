package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_CSV(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, CSV, "run-1")
	require.NoError(t, w.Header("dims", "accuracy", "subset"))
	require.NoError(t, w.Row(512, 0.9975, []int{1, 4, 9}))
	require.NoError(t, w.Comment("baseline"))
	require.NoError(t, w.Flush())

	assert.Equal(t, "dims;accuracy;subset\n512;0.9975;1,4,9\n# baseline\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, JSON, "run-1")
	require.NoError(t, w.Header("dims", "accuracy"))
	require.NoError(t, w.Row(64, 0.5))
	require.NoError(t, w.Flush())

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]any{"run": "run-1", "dims": 64.0, "accuracy": 0.5}, got)
}

func TestWriter_RowWidth(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, CSV, "")
	require.NoError(t, w.Header("a", "b"))
	assert.Error(t, w.Row(1))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestNewRunID(t *testing.T) {
	_, err := uuid.Parse(NewRunID())
	assert.NoError(t, err)
}

func TestExport_RoundTrip(t *testing.T) {
	lines := []EmbeddingLine{
		{Pair: 0, Genuine: true, A: "a.jpg", B: "b.jpg", EmbA: []float32{1, 2}, EmbB: []float32{3, 4}},
		{Pair: 1, A: "a.jpg", B: "c.jpg", EmbA: []float32{1, 2}, EmbB: []float32{-1, 0.5}},
	}

	for _, compress := range []bool{false, true} {
		dir := t.TempDir()
		e, err := CreateExport(dir, "embeddings_full.json", compress)
		require.NoError(t, err)
		for _, l := range lines {
			require.NoError(t, e.Write(l))
		}
		require.NoError(t, e.Close())

		assert.Equal(t, compress, strings.HasSuffix(e.Path, ".zst"))
		assert.Equal(t, dir, filepath.Dir(e.Path))

		got, err := ReadExport(e.Path)
		require.NoError(t, err)
		assert.Equal(t, lines, got)
	}
}
