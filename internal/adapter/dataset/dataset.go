// Package dataset loads the verification datasets: LFW ("easy") and CPLFW
// ("hard") pairs files resolved against an image root.
package dataset

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"embreduce/internal/adapter/fs"
	"embreduce/internal/domain"
	"embreduce/internal/port"
)

// ForClass returns the loader for a dataset complexity class.
func ForClass(class string) (port.DatasetLoader, error) {
	switch class {
	case "easy":
		return LFW{}, nil
	case "hard":
		return CPLFW{}, nil
	default:
		return nil, fmt.Errorf("unknown dataset %q, possible values: easy, hard", class)
	}
}

// builder accumulates records, deduplicating by relative path.
type builder struct {
	ds   domain.Dataset
	byID map[string]int
}

func newBuilder(name, root string) *builder {
	return &builder{
		ds:   domain.Dataset{Name: name, Root: root},
		byID: make(map[string]int),
	}
}

func (b *builder) record(rel, identity string) int {
	if i, ok := b.byID[rel]; ok {
		return i
	}
	i := len(b.ds.Records)
	b.ds.Records = append(b.ds.Records, domain.Record{
		ID:         rel,
		Identity:   identity,
		SourcePath: filepath.Join(b.ds.Root, filepath.FromSlash(rel)),
	})
	b.byID[rel] = i
	return i
}

func (b *builder) pair(relA, idA, relB, idB string, genuine bool) {
	a := b.record(relA, idA)
	c := b.record(relB, idB)
	b.ds.Pairs = append(b.ds.Pairs, domain.Pair{A: a, B: c, Genuine: genuine})
}

// checkPaths validates the pairs file and image root before parsing.
func checkPaths(pairsFile, root string) error {
	if err := fs.CheckRoot(root); err != nil {
		return err
	}
	return fs.CheckFile(pairsFile)
}

// identityFromFile strips the "_NNNN.ext" suffix of an image file name.
func identityFromFile(rel string) string {
	base := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	if i := strings.LastIndexByte(base, '_'); i > 0 {
		if isDigits(base[i+1:]) {
			return base[:i]
		}
	}
	return base
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func malformed(pairsFile string, line int, format string, args ...any) error {
	return fmt.Errorf("%w: %s:%d: %s", domain.ErrInvalidDatasetPath, pairsFile, line, fmt.Sprintf(format, args...))
}
