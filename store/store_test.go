package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCreatesRunDirectory(t *testing.T) {
	base := t.TempDir()
	start := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

	s, err := New(base, "bank", start)
	require.NoError(t, err)

	want := filepath.Join(base, "bank", "20240301T123045.000Z")
	require.Equal(t, want, s.Dir())
	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestWriteJSON(t *testing.T) {
	s, err := New(t.TempDir(), "t", time.Now())
	require.NoError(t, err)

	require.NoError(t, s.WriteJSON("test.json", map[string]int{"ops": 3}))

	data, err := os.ReadFile(filepath.Join(s.Dir(), "test.json"))
	require.NoError(t, err)

	var back map[string]int
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 3, back["ops"])
}

func TestNodeFileCreatesParents(t *testing.T) {
	s, err := New(t.TempDir(), "t", time.Now())
	require.NoError(t, err)

	path, err := s.NodeFile("n1", "tidb/log/tidb.log")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.Dir(), "n1", "tidb", "log", "tidb.log"), path)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestSuffixPaths(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  map[string]string
	}{
		{
			name:  "empty",
			paths: nil,
			want:  map[string]string{},
		},
		{
			name:  "single path keeps the file name",
			paths: []string{"/var/log/db/server.log"},
			want:  map[string]string{"/var/log/db/server.log": "server.log"},
		},
		{
			name:  "common prefix stripped",
			paths: []string{"/var/log/db/server.log", "/var/log/db/slow.log"},
			want: map[string]string{
				"/var/log/db/server.log": "server.log",
				"/var/log/db/slow.log":   "slow.log",
			},
		},
		{
			name:  "diverging directories stay",
			paths: []string{"/var/log/tidb/tidb.log", "/var/log/pd/pd.log"},
			want: map[string]string{
				"/var/log/tidb/tidb.log": "tidb/tidb.log",
				"/var/log/pd/pd.log":     "pd/pd.log",
			},
		},
		{
			name: "same file name under different directories",
			paths: []string{
				"/data/a/server.log",
				"/data/b/server.log",
			},
			want: map[string]string{
				"/data/a/server.log": "a/server.log",
				"/data/b/server.log": "b/server.log",
			},
		},
		{
			name: "shorter path bounds the prefix",
			paths: []string{
				"/var/log/server.log",
				"/var/log/db/extra/slow.log",
			},
			want: map[string]string{
				"/var/log/server.log":        "server.log",
				"/var/log/db/extra/slow.log": "db/extra/slow.log",
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, SuffixPaths(test.paths))
		})
	}
}

func TestSortedPaths(t *testing.T) {
	suffixes := map[string]string{
		"/c/x.log": "x.log",
		"/a/y.log": "y.log",
		"/b/z.log": "z.log",
	}
	require.Equal(t, []string{"/a/y.log", "/b/z.log", "/c/x.log"}, SortedPaths(suffixes))
}
