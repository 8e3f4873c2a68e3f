package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"embreduce/internal/domain"
)

// LFW parses the tab-separated LFW pairs file. A 3-field line is a genuine
// pair (name, n1, n2); a 4-field line an impostor pair (name1, n1, name2, n2).
// Image paths are name/name_NNNN.jpg below the root.
type LFW struct{}

func (LFW) Name() string { return "lfw" }

func (l LFW) Load(pairsFile, root string) (domain.Dataset, error) {
	if err := checkPaths(pairsFile, root); err != nil {
		return domain.Dataset{}, err
	}

	f, err := os.Open(pairsFile)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("%w: %v", domain.ErrInvalidDatasetPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	b := newBuilder(l.Name(), root)
	for line := 1; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Dataset{}, malformed(pairsFile, line, "%v", err)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		switch len(fields) {
		case 0, 1, 2:
			// header line ("folds<TAB>pairs") or blank
			continue
		case 3:
			a, err := lfwImage(fields[0], fields[1])
			if err != nil {
				return domain.Dataset{}, malformed(pairsFile, line, "%v", err)
			}
			c, err := lfwImage(fields[0], fields[2])
			if err != nil {
				return domain.Dataset{}, malformed(pairsFile, line, "%v", err)
			}
			b.pair(a, fields[0], c, fields[0], true)
		case 4:
			a, err := lfwImage(fields[0], fields[1])
			if err != nil {
				return domain.Dataset{}, malformed(pairsFile, line, "%v", err)
			}
			c, err := lfwImage(fields[2], fields[3])
			if err != nil {
				return domain.Dataset{}, malformed(pairsFile, line, "%v", err)
			}
			b.pair(a, fields[0], c, fields[2], false)
		default:
			return domain.Dataset{}, malformed(pairsFile, line, "expected 3 or 4 fields, got %d", len(fields))
		}
	}

	return b.ds, nil
}

func lfwImage(name, nr string) (string, error) {
	n, err := strconv.Atoi(nr)
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid image number %q", nr)
	}
	return fmt.Sprintf("%s/%s_%04d.jpg", name, name, n), nil
}
