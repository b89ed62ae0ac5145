package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
)

// RacingDateFormat names racecard and result files
const RacingDateFormat = "2006-01-02"

// RacingScraper runs the external racecard scraper and reads what it writes:
// {basedir}/racecards/{date}.json and {basedir}/results/{date}.json
type RacingScraper struct {
	baseDir string
	command []string
	timeout time.Duration
}

// NewRacingScraper creates a scraper runner. command may contain {date} and
// {basedir} placeholders; an empty command only reads existing files.
func NewRacingScraper(baseDir, command string, timeout time.Duration) *RacingScraper {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RacingScraper{
		baseDir: baseDir,
		command: strings.Fields(command),
		timeout: timeout,
	}
}

// Configured reports whether a scraper command is set
func (s *RacingScraper) Configured() bool {
	return len(s.command) > 0
}

// Run executes the scraper for date
func (s *RacingScraper) Run(ctx context.Context, date time.Time) error {
	if !s.Configured() {
		return nil
	}

	day := date.Format(RacingDateFormat)
	args := make([]string, len(s.command))
	for i, a := range s.command {
		a = strings.ReplaceAll(a, "{date}", day)
		a = strings.ReplaceAll(a, "{basedir}", s.baseDir)
		args[i] = a
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		metrics.RecordScraperRun("error")
		if len(out) > 512 {
			out = out[len(out)-512:]
		}
		return fmt.Errorf("racing scraper failed for %s: %w; out=%s", day, err, string(out))
	}
	metrics.RecordScraperRun("success")

	log.Info().
		Str("date", day).
		Dur("duration", time.Since(start)).
		Msg("Racing scraper completed")

	return nil
}

// RacecardPath returns the racecard file for date
func (s *RacingScraper) RacecardPath(date time.Time) string {
	return filepath.Join(s.baseDir, "racecards", date.Format(RacingDateFormat)+".json")
}

// ResultsPath returns the results file for date
func (s *RacingScraper) ResultsPath(date time.Time) string {
	return filepath.Join(s.baseDir, "results", date.Format(RacingDateFormat)+".json")
}

// LoadRacecards reads the racecards for date. The raw file is returned for
// archiving. A missing file means no card has been published yet and
// returns no races and no error.
func (s *RacingScraper) LoadRacecards(date time.Time) ([]models.RacecardRace, []byte, error) {
	data, err := os.ReadFile(s.RacecardPath(date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read racecards: %w", err)
	}
	races, err := models.ParseRacecards(data)
	if err != nil {
		return nil, data, err
	}
	return races, data, nil
}

// LoadResults reads the results for date. A missing file means no results
// yet and returns no races and no error.
func (s *RacingScraper) LoadResults(date time.Time) ([]models.RaceResult, []byte, error) {
	data, err := os.ReadFile(s.ResultsPath(date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read race results: %w", err)
	}
	results, err := models.ParseRaceResults(data)
	if err != nil {
		return nil, data, err
	}
	return results, data, nil
}
