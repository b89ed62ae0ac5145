package models

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RacecardRace is one race from {basedir}/racecards/{date}.json
type RacecardRace struct {
	RaceID   string           `json:"race_id"`
	Course   string           `json:"course"`
	CourseID string           `json:"course_id"`
	Region   string           `json:"region"`
	Date     string           `json:"date"`
	OffTime  string           `json:"off_time"`
	RaceName string           `json:"race_name"`
	Distance string           `json:"distance"`
	Going    string           `json:"going"`
	Runners  []RacecardRunner `json:"runners"`
}

type RacecardRunner struct {
	HorseID string     `json:"horse_id"`
	Name    string     `json:"name"`
	Number  FlexString `json:"number"`
	Draw    FlexString `json:"draw"`
	Jockey  string     `json:"jockey"`
	Trainer string     `json:"trainer"`
	Form    string     `json:"form"`
}

// RaceResult is one race from {basedir}/results/{date}.json
type RaceResult struct {
	RaceID   string             `json:"race_id"`
	Course   string             `json:"course"`
	CourseID string             `json:"course_id"`
	Region   string             `json:"region"`
	Date     string             `json:"date"`
	OffTime  string             `json:"off"`
	RaceName string             `json:"race_name"`
	Runners  []RaceResultRunner `json:"runners"`
}

type RaceResultRunner struct {
	HorseID string `json:"horse_id"`
	Horse   string `json:"horse"`
	Pos     string `json:"pos"`
	SP      string `json:"sp"`
	Jockey  string `json:"jockey"`
	Trainer string `json:"trainer"`
	Beaten  string `json:"btn"`
}

// ParseRacecards accepts either a flat list of races or the scraper's nested
// region -> course -> off time -> race layout.
func ParseRacecards(data []byte) ([]RacecardRace, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var races []RacecardRace
		if err := json.Unmarshal(data, &races); err != nil {
			return nil, fmt.Errorf("failed to decode racecards: %w", err)
		}
		return races, nil
	}

	var nested map[string]map[string]map[string]RacecardRace
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("failed to decode racecards: %w", err)
	}
	var races []RacecardRace
	for region, courses := range nested {
		for course, offs := range courses {
			for off, race := range offs {
				if race.Region == "" {
					race.Region = region
				}
				if race.Course == "" {
					race.Course = course
				}
				if race.OffTime == "" {
					race.OffTime = off
				}
				races = append(races, race)
			}
		}
	}
	sort.Slice(races, func(i, j int) bool {
		if races[i].Course != races[j].Course {
			return races[i].Course < races[j].Course
		}
		return races[i].OffTime < races[j].OffTime
	})
	return races, nil
}

// ParseRaceResults decodes a results file
func ParseRaceResults(data []byte) ([]RaceResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var results []RaceResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to decode race results: %w", err)
	}
	return results, nil
}

// RaceKey is the natural key for a race: the provider race ID, or a slug of
// course, date and off time so racecards and results agree.
func RaceKey(raceID, course, date, off string) string {
	return EntityKey(raceID, strings.Join([]string{course, date, off}, " "))
}

// RaceVenue builds the racecourse venue
func RaceVenue(courseID, course, region string) *Venue {
	name := orDefault(course, DefaultUnknown)
	return &Venue{
		Key:     EntityKey(courseID, name),
		Name:    name,
		City:    DefaultUnknown,
		Country: orDefault(region, DefaultUnknown),
	}
}

// RaceClock describes how a source writes off times
type RaceClock struct {
	Location *time.Location
	// TwelveHour marks a source that writes afternoon races without a
	// suffix, so "2:30" means 14:30
	TwelveHour bool
}

func raceStart(date, off string, clock RaceClock) (time.Time, error) {
	loc := clock.Location
	if loc == nil {
		loc = time.UTC
	}
	off = strings.TrimSpace(off)
	if off == "" {
		return time.ParseInLocation("2006-01-02", strings.TrimSpace(date), loc)
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(date)+" "+off, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable off time %q on %s", off, date)
	}
	// No race goes off before 10am, so a small hour on a 12-hour card is pm
	if clock.TwelveHour && t.Hour() < 10 {
		t = t.Add(12 * time.Hour)
	}
	return t.UTC(), nil
}

// ToEvent converts a racecard race into a pre-race Event
func (r *RacecardRace) ToEvent(date string, clock RaceClock) (*Event, error) {
	if r.Date == "" {
		r.Date = date
	}
	start, err := raceStart(r.Date, r.OffTime, clock)
	if err != nil {
		return nil, err
	}
	event := &Event{
		Sport:       HorseRacing,
		EventID:     RaceKey(r.RaceID, r.Course, r.Date, r.OffTime),
		Name:        orDefault(r.RaceName, DefaultEventName),
		Competition: orDefault(r.Course, DefaultUnknown),
		StartTime:   start,
		State:       StatePre,
	}
	if detail := strings.TrimSpace(strings.Join([]string{r.Distance, r.Going}, " ")); detail != "" {
		event.StatusDetail = sql.NullString{String: detail, Valid: true}
	}
	return event, nil
}

// ToResults converts racecard runners into declared-runner rows
func (r *RacecardRace) ToResults() []*EventResult {
	results := make([]*EventResult, 0, len(r.Runners))
	for _, runner := range r.Runners {
		name := orDefault(runner.Name, DefaultHorseName)
		res := &EventResult{
			Name:            name,
			ParticipantKey:  EntityKey(runner.HorseID, name),
			ParticipantKind: KindHorse,
		}
		if d := runnerDetail(runner.Jockey, runner.Trainer); d != "" {
			res.Detail = sql.NullString{String: d, Valid: true}
		}
		if n := runner.Number.String(); n != "" {
			res.PositionText = sql.NullString{String: "#" + n, Valid: true}
		}
		if form := strings.TrimSpace(runner.Form); form != "" {
			res.Score = sql.NullString{String: form, Valid: true}
		}
		results = append(results, res)
	}
	return results
}

// ToEvent converts a result race into a completed Event
func (r *RaceResult) ToEvent(date string, clock RaceClock) (*Event, error) {
	if r.Date == "" {
		r.Date = date
	}
	start, err := raceStart(r.Date, r.OffTime, clock)
	if err != nil {
		return nil, err
	}
	event := &Event{
		Sport:       HorseRacing,
		EventID:     RaceKey(r.RaceID, r.Course, r.Date, r.OffTime),
		Name:        orDefault(r.RaceName, DefaultEventName),
		Competition: orDefault(r.Course, DefaultUnknown),
		StartTime:   start,
		State:       StatePost,
	}
	for _, runner := range r.Runners {
		if strings.TrimSpace(runner.Pos) == "1" {
			event.HomeName = sql.NullString{String: orDefault(runner.Horse, DefaultHorseName), Valid: true}
			break
		}
	}
	return event, nil
}

// ToResults converts finishers into result rows: numeric positions are
// parsed, non-finishers (PU, F, UR) keep only the position text.
func (r *RaceResult) ToResults() []*EventResult {
	results := make([]*EventResult, 0, len(r.Runners))
	for _, runner := range r.Runners {
		name := orDefault(runner.Horse, DefaultHorseName)
		res := &EventResult{
			Name:            name,
			ParticipantKey:  EntityKey(runner.HorseID, name),
			ParticipantKind: KindHorse,
		}
		if pos := strings.TrimSpace(runner.Pos); pos != "" {
			res.PositionText = sql.NullString{String: pos, Valid: true}
			if n, err := strconv.Atoi(pos); err == nil {
				res.Position = sql.NullInt32{Int32: int32(n), Valid: true}
				res.Winner = n == 1
			}
		}
		if sp := strings.TrimSpace(runner.SP); sp != "" {
			res.Score = sql.NullString{String: sp, Valid: true}
		}
		if d := runnerDetail(runner.Jockey, runner.Trainer); d != "" {
			res.Detail = sql.NullString{String: d, Valid: true}
		}
		results = append(results, res)
	}
	return results
}

func runnerDetail(jockey, trainer string) string {
	jockey, trainer = strings.TrimSpace(jockey), strings.TrimSpace(trainer)
	switch {
	case jockey != "" && trainer != "":
		return "J: " + jockey + " / T: " + trainer
	case jockey != "":
		return "J: " + jockey
	case trainer != "":
		return "T: " + trainer
	}
	return ""
}
