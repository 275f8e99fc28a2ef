package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/spf13/afero"
)

// Cleanup removes the given sources, slash-separated and relative to inputRoot.
// It only touches the listed paths; files that are already gone are skipped.
// It returns the paths actually removed.
func Cleanup(fs afero.Fs, inputRoot string, sources []string) ([]string, error) {
	var removed []string
	for _, rel := range sources {
		rel = fileutil.CleanSlash(rel)
		if rel == "" {
			continue
		}
		err := fs.Remove(fileutil.JoinSlash(inputRoot, rel))
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Source already removed", "source", rel)
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to remove source %s: %w", rel, err)
		}
		log.Debug("Removed source", "source", rel)
		removed = append(removed, rel)
	}
	if len(removed) > 0 {
		log.Info("Removed processed sources", "count", len(removed))
	}
	return removed, nil
}
