package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pingcap/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// A Store is the on-disk artifact area of one test run.
//
// Layout:
//
//	<base>/<test name or run id>/<start time>/
//	    run.log          the run's persistent log
//	    test.json        snapshot written before analysis
//	    results.json     snapshot written after analysis
//	    <node>/<suffix>  downloaded log files
type Store struct {
	dir string
}

// Create the artifact area for a run that started at start.
func New(base, name string, start time.Time) (*Store, error) {
	dir := filepath.Join(base, name, start.UTC().Format("20060102T150405.000Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.AddStack(err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the run's artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// LogPath returns the path of the run's persistent log file.
func (s *Store) LogPath() string {
	return filepath.Join(s.dir, "run.log")
}

// WriteJSON writes v as indented JSON to the named file in the artifact
// directory.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.AddStack(err)
	}
	data = append(data, '\n')
	return errors.AddStack(os.WriteFile(filepath.Join(s.dir, name), data, 0o644))
}

// NodeFile returns the local path for a downloaded file of node at the given
// suffix, creating parent directories as needed.
func (s *Store) NodeFile(node, suffix string) (string, error) {
	path := filepath.Join(s.dir, node, filepath.FromSlash(suffix))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.AddStack(err)
	}
	return path, nil
}

// SuffixPaths maps each remote path to its shortest unique suffix, obtained
// by stripping the longest directory prefix common to all paths. The suffixes
// keep enough structure to stay collision free while staying flat.
func SuffixPaths(paths []string) map[string]string {
	out := make(map[string]string, len(paths))
	if len(paths) == 0 {
		return out
	}

	split := make([][]string, 0, len(paths))
	for _, p := range paths {
		split = append(split, strings.Split(strings.TrimPrefix(p, "/"), "/"))
	}

	// Directory components only; the file name is never part of the
	// common prefix.
	common := len(split[0]) - 1
	for _, parts := range split[1:] {
		if n := len(parts) - 1; n < common {
			common = n
		}
	}
	for i := 0; i < common; {
		component := split[0][i]
		same := true
		for _, parts := range split[1:] {
			if parts[i] != component {
				same = false
				break
			}
		}
		if !same {
			common = i
			break
		}
		i++
	}

	for i, p := range paths {
		out[p] = strings.Join(split[i][common:], "/")
	}
	return out
}

// SortedPaths returns the remote paths of a suffix mapping in stable order.
func SortedPaths(suffixes map[string]string) []string {
	paths := maps.Keys(suffixes)
	slices.Sort(paths)
	return paths
}
