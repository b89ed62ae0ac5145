package client

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRacingScraper_LoadFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewRacingScraper(dir, "", time.Second)
	date := time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC)

	races, raw, err := s.LoadRacecards(date)
	assert.NoError(t, err, "Missing racecards mean no card yet")
	assert.Nil(t, races)
	assert.Nil(t, raw)

	results, raw, err := s.LoadResults(date)
	assert.NoError(t, err, "Missing results mean no results yet")
	assert.Nil(t, results)
	assert.Nil(t, raw)

	writeFile(t, filepath.Join(dir, "racecards", "2024-06-18.json"),
		`[{"race_id": "1", "course": "Ascot", "off_time": "2:30", "runners": [{"name": "Sea Legend"}]}]`)
	writeFile(t, filepath.Join(dir, "results", "2024-06-18.json"),
		`[{"race_id": "1", "course": "Ascot", "off": "2:30", "runners": [{"horse": "Sea Legend", "pos": "1"}]}]`)

	races, _, err = s.LoadRacecards(date)
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.Equal(t, "Ascot", races[0].Course)

	results, _, err = s.LoadResults(date)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].Runners[0].Pos)
}

func TestRacingScraper_RunSubstitutesPlaceholders(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "scrape.sh")
	writeFile(t, script, "#!/bin/sh\nmkdir -p \"$2/racecards\"\necho '[]' > \"$2/racecards/$1.json\"\n")
	require.NoError(t, os.Chmod(script, 0o755))

	s := NewRacingScraper(dir, script+" {date} {basedir}", 5*time.Second)
	require.True(t, s.Configured())

	date := time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Run(context.Background(), date))

	_, err := os.Stat(s.RacecardPath(date))
	assert.NoError(t, err)
}

func TestRacingScraper_RunFailure(t *testing.T) {
	s := NewRacingScraper(t.TempDir(), "/definitely/not/a/scraper {date}", time.Second)
	err := s.Run(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestRacingScraper_Unconfigured(t *testing.T) {
	s := NewRacingScraper(t.TempDir(), "  ", time.Second)
	assert.False(t, s.Configured())
	assert.NoError(t, s.Run(context.Background(), time.Now()))
}
