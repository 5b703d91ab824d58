package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCheckpoints is returned when the saves directory holds no
// recognizable checkpoint file. Discovery fails before anything is loaded,
// converted or written.
var ErrNoCheckpoints = errors.New("no checkpoints found")

// Ordering selects how "latest" is decided among checkpoint files.
type Ordering string

// Supported orderings.
const (
	// OrderingNumeric parses a trailing integer in the file stem
	// (model_10 beats model_9 even though "model_10" sorts first
	// lexicographically). Files without a numeric suffix compare
	// lexicographically and always lose to files with one.
	OrderingNumeric Ordering = "numeric"
	// OrderingLexicographic picks the byte-wise maximal filename. Only
	// correct when names embed a zero-padded counter or a sortable
	// timestamp.
	OrderingLexicographic Ordering = "lexicographic"
	// OrderingMtime picks the newest modification time, with a
	// lexicographic tiebreak.
	OrderingMtime Ordering = "mtime"
)

// ParseOrdering validates an ordering name from configuration.
func ParseOrdering(s string) (Ordering, error) {
	switch Ordering(s) {
	case OrderingNumeric, OrderingLexicographic, OrderingMtime:
		return Ordering(s), nil
	default:
		return "", fmt.Errorf("unknown ordering %q (valid: numeric, lexicographic, mtime)", s)
	}
}

// checkpoint file extensions recognized by discovery.
var checkpointExts = map[string]bool{
	".born":        true,
	".safetensors": true,
}

// IsCheckpointFile reports whether name looks like a checkpoint container.
func IsCheckpointFile(name string) bool {
	return checkpointExts[strings.ToLower(filepath.Ext(name))]
}

// Latest returns the path of the newest checkpoint in dir under the given
// ordering. Returns ErrNoCheckpoints when dir has no checkpoint files.
func Latest(dir string, ord Ordering) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint directory %s: %w", dir, err)
	}

	best := ""
	var bestInfo os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !IsCheckpointFile(entry.Name()) {
			continue
		}
		if best == "" {
			best = entry.Name()
			if ord == OrderingMtime {
				if bestInfo, err = entry.Info(); err != nil {
					return "", fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
				}
			}
			continue
		}

		switch ord {
		case OrderingLexicographic:
			if entry.Name() > best {
				best = entry.Name()
			}
		case OrderingNumeric:
			if numericLess(best, entry.Name()) {
				best = entry.Name()
			}
		case OrderingMtime:
			info, err := entry.Info()
			if err != nil {
				return "", fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
			}
			if info.ModTime().After(bestInfo.ModTime()) ||
				(info.ModTime().Equal(bestInfo.ModTime()) && entry.Name() > best) {
				best = entry.Name()
				bestInfo = info
			}
		default:
			return "", fmt.Errorf("unknown ordering %q", ord)
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w in %s", ErrNoCheckpoints, dir)
	}
	return filepath.Join(dir, best), nil
}

// numericLess reports whether b is newer than a under numeric ordering.
func numericLess(a, b string) bool {
	na, oka := trailingNumber(a)
	nb, okb := trailingNumber(b)
	switch {
	case oka && okb:
		if na != nb {
			return na < nb
		}
		return a < b
	case oka:
		return false // numbered names beat unnumbered ones
	case okb:
		return true
	default:
		return a < b
	}
}

// trailingNumber extracts the integer run at the end of the file stem,
// e.g. "model_010.born" -> 10.
func trailingNumber(name string) (int64, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	end := len(stem)
	start := end
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	// Cap digit count so absurd names cannot overflow.
	if end-start > 18 {
		start = end - 18
	}
	var n int64
	for i := start; i < end; i++ {
		n = n*10 + int64(stem[i]-'0')
	}
	return n, true
}
