package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embreduce/internal/domain"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestWalker_Walk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Aaron_Eckhart", "Aaron_Eckhart_0001.jpg"))
	writeFile(t, filepath.Join(root, "Aaron_Eckhart", "notes.txt"))
	writeFile(t, filepath.Join(root, "Zed", "Zed_0001.png"))
	writeFile(t, filepath.Join(root, "thumbs", "Zed_0001.jpg"))

	w := NewWalker([]string{"**/*.jpg", "**/*.png"}, []string{"thumbs/"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"Aaron_Eckhart/Aaron_Eckhart_0001.jpg", "Zed/Zed_0001.png"}, paths)
}

func TestCheckRoot(t *testing.T) {
	root := t.TempDir()
	assert.NoError(t, CheckRoot(root))

	err := CheckRoot(filepath.Join(root, "missing"))
	assert.True(t, errors.Is(err, domain.ErrInvalidDatasetPath))

	file := filepath.Join(root, "pairs.txt")
	writeFile(t, file)
	assert.True(t, errors.Is(CheckRoot(file), domain.ErrInvalidDatasetPath))
	assert.True(t, errors.Is(CheckRoot(""), domain.ErrInvalidDatasetPath))

	assert.NoError(t, CheckFile(file))
	assert.True(t, errors.Is(CheckFile(root), domain.ErrInvalidDatasetPath))
}
