package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
)

// PruneOldResults deletes aged result directories, keeping the newest `keep`
// of them. Directories whose name starts with any protected prefix are never
// candidates: the latest symlinks and intermediate build results must
// survive every cleanup.
func PruneOldResults(resultsDir string, keep int, protectedPrefixes []string) error {
	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		return fmt.Errorf("read %s: %w", resultsDir, err)
	}

	type candidate struct {
		path  string
		mtime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if hasAnyPrefix(entry.Name(), protectedPrefixes) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:  filepath.Join(resultsDir, entry.Name()),
			mtime: info.ModTime().UnixNano(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mtime < candidates[j].mtime })
	if keep > 0 && len(candidates) > keep {
		candidates = candidates[:len(candidates)-keep]
	} else if keep > 0 {
		candidates = nil
	}

	for _, old := range candidates {
		logging.Info("cleanup", "removing old build", "path", old.path)
		if err := os.RemoveAll(old.path); err != nil {
			return fmt.Errorf("remove %s: %w", old.path, err)
		}
	}
	return nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
