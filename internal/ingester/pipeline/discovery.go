package pipeline

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/Abhishekshelar208/oceanquery/internal/common/oceanerrors"
)

// DiscoverFiles lists the data files under inputDir matching any of the
// glob patterns. A missing input directory is a configuration error, not an
// empty run. Matches are deduplicated and returned sorted, so runs with the
// same inputs always process files in the same order.
func DiscoverFiles(inputDir string, patterns []string) ([]string, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, errors.WithStack(&oceanerrors.ErrInvalidArgument{
			Name: "inputDirectory", Value: inputDir, Message: "directory does not exist",
		})
	}
	if !info.IsDir() {
		return nil, errors.WithStack(&oceanerrors.ErrInvalidArgument{
			Name: "inputDirectory", Value: inputDir, Message: "not a directory",
		})
	}
	if len(patterns) == 0 {
		patterns = []string{"*.nc"}
	}
	seen := map[string]bool{}
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(inputDir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "bad file pattern %q", pattern)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			seen[match] = true
			files = append(files, match)
		}
	}
	sort.Strings(files)
	return files, nil
}
