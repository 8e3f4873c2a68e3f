package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"embreduce/internal/domain"
)

// CPLFW parses the CPLFW pairs file: each line is "file label", two
// consecutive lines form a pair, and the first line's label (1 = same person)
// decides the kind of pair.
type CPLFW struct{}

func (CPLFW) Name() string { return "cplfw" }

func (c CPLFW) Load(pairsFile, root string) (domain.Dataset, error) {
	if err := checkPaths(pairsFile, root); err != nil {
		return domain.Dataset{}, err
	}

	f, err := os.Open(pairsFile)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("%w: %v", domain.ErrInvalidDatasetPath, err)
	}
	defer f.Close()

	b := newBuilder(c.Name(), root)

	var (
		pending     string
		pendingSame bool
		havePending bool
	)

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return domain.Dataset{}, malformed(pairsFile, line, "expected \"file label\", got %q", scanner.Text())
		}

		if !havePending {
			pending, pendingSame, havePending = fields[0], fields[1] == "1", true
			continue
		}
		b.pair(pending, identityFromFile(pending), fields[0], identityFromFile(fields[0]), pendingSame)
		havePending = false
	}
	if err := scanner.Err(); err != nil {
		return domain.Dataset{}, malformed(pairsFile, line, "%v", err)
	}
	if havePending {
		return domain.Dataset{}, malformed(pairsFile, line, "odd number of entries, %s has no partner", pending)
	}

	return b.ds, nil
}
