//go:build linux

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")

	cases := []struct {
		content string
		low     bool
	}{
		{"0\n", true},
		{"1\n", false},
		{"0", true},
		{"", false},
	}
	for _, tc := range cases {
		require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

		f, err := os.Open(path)
		require.NoError(t, err)
		low, err := readLevel(f)
		f.Close()

		require.NoError(t, err, "content %q", tc.content)
		assert.Equal(t, tc.low, low, "content %q", tc.content)
	}
}

func TestReadLevel_RewindsBeforeEachRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	require.NoError(t, os.WriteFile(path, []byte("0\n"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	for i := 0; i < 3; i++ {
		low, err := readLevel(f)
		require.NoError(t, err)
		assert.True(t, low, "read %d", i)
	}
}

func TestReadLevel_ClosedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = readLevel(f)
	assert.Error(t, err)
}

func TestSysfsWatcher_MissingFile(t *testing.T) {
	w := &sysfsWatcher{path: filepath.Join(t.TempDir(), "missing"), logger: slog.New(slog.DiscardHandler)}
	err := w.Run(t.Context(), make(chan struct{}, 1))
	assert.Error(t, err)
}
