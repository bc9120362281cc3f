package datasets

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func parseFloat32(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty string")
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}

// splitFields splits a line on whitespace, commas and tabs.
func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
}

// FindTrajectoryFiles returns the .txt and .csv files of dir, sorted.
func FindTrajectoryFiles(dir string) ([]string, error) {
	var all []string
	for _, ext := range []string{"*.txt", "*.csv"} {
		matches, err := filepath.Glob(filepath.Join(dir, ext))
		if err != nil {
			return nil, err
		}
		all = append(all, matches...)
	}
	if len(all) == 0 {
		return nil, errors.Errorf("no trajectory files found in %s", dir)
	}
	sort.Strings(all)
	return all, nil
}
