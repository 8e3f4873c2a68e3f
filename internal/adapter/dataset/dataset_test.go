package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embreduce/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLFW_Load(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "lfw")
	require.NoError(t, os.MkdirAll(root, 0o755))
	pairs := filepath.Join(dir, "pairs.txt")
	writeFile(t, pairs, "10\t300\n"+
		"Abel_Pacheco\t1\t4\n"+
		"Abel_Pacheco\t1\tAkhmed_Zakayev\t3\n")

	ds, err := LFW{}.Load(pairs, root)
	require.NoError(t, err)

	require.Len(t, ds.Records, 3)
	assert.Equal(t, "Abel_Pacheco/Abel_Pacheco_0001.jpg", ds.Records[0].ID)
	assert.Equal(t, "Abel_Pacheco/Abel_Pacheco_0004.jpg", ds.Records[1].ID)
	assert.Equal(t, "Akhmed_Zakayev/Akhmed_Zakayev_0003.jpg", ds.Records[2].ID)
	assert.Equal(t, "Akhmed_Zakayev", ds.Records[2].Identity)
	assert.Equal(t, filepath.Join(root, "Abel_Pacheco", "Abel_Pacheco_0001.jpg"), ds.Records[0].SourcePath)

	assert.Equal(t, []domain.Pair{
		{A: 0, B: 1, Genuine: true},
		{A: 0, B: 2, Genuine: false},
	}, ds.Pairs)
}

func TestLFW_Malformed(t *testing.T) {
	dir := t.TempDir()
	pairs := filepath.Join(dir, "pairs.txt")
	writeFile(t, pairs, "a\tb\tc\td\te\n")

	_, err := LFW{}.Load(pairs, dir)
	assert.ErrorIs(t, err, domain.ErrInvalidDatasetPath)

	writeFile(t, pairs, "Abel\tone\t2\n")
	_, err = LFW{}.Load(pairs, dir)
	assert.ErrorIs(t, err, domain.ErrInvalidDatasetPath)
}

func TestCPLFW_Load(t *testing.T) {
	dir := t.TempDir()
	pairs := filepath.Join(dir, "pairs_CPLFW.txt")
	writeFile(t, pairs, "Aaron_Peirsol_1.jpg 1\n"+
		"Aaron_Peirsol_2.jpg 1\n"+
		"Aaron_Peirsol_1.jpg 0\n"+
		"Bill_Gates_3.jpg 0\n")

	ds, err := CPLFW{}.Load(pairs, dir)
	require.NoError(t, err)

	require.Len(t, ds.Records, 3)
	assert.Equal(t, "Aaron_Peirsol", ds.Records[0].Identity)
	assert.Equal(t, "Bill_Gates", ds.Records[2].Identity)
	assert.Equal(t, []domain.Pair{
		{A: 0, B: 1, Genuine: true},
		{A: 0, B: 2, Genuine: false},
	}, ds.Pairs)
}

func TestCPLFW_OddEntries(t *testing.T) {
	dir := t.TempDir()
	pairs := filepath.Join(dir, "pairs.txt")
	writeFile(t, pairs, "A_1.jpg 1\nA_2.jpg 1\nB_1.jpg 0\n")

	_, err := CPLFW{}.Load(pairs, dir)
	assert.ErrorIs(t, err, domain.ErrInvalidDatasetPath)
}

func TestLoad_InvalidRoot(t *testing.T) {
	dir := t.TempDir()
	pairs := filepath.Join(dir, "pairs.txt")
	writeFile(t, pairs, "")

	for _, l := range []interface {
		Load(string, string) (domain.Dataset, error)
	}{LFW{}, CPLFW{}} {
		_, err := l.Load(pairs, filepath.Join(dir, "missing"))
		assert.ErrorIs(t, err, domain.ErrInvalidDatasetPath)
		_, err = l.Load(filepath.Join(dir, "nope.txt"), dir)
		assert.ErrorIs(t, err, domain.ErrInvalidDatasetPath)
	}
}

func TestForClass(t *testing.T) {
	l, err := ForClass("easy")
	require.NoError(t, err)
	assert.Equal(t, "lfw", l.Name())

	l, err = ForClass("hard")
	require.NoError(t, err)
	assert.Equal(t, "cplfw", l.Name())

	_, err = ForClass("medium")
	assert.Error(t, err)
}

func TestIdentityFromFile(t *testing.T) {
	assert.Equal(t, "John_Doe", identityFromFile("John_Doe_0012.jpg"))
	assert.Equal(t, "single", identityFromFile("single.png"))
	assert.Equal(t, "Name_x", identityFromFile("dir/Name_x.jpg"))
}
