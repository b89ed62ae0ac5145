package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twelveHourUTC = RaceClock{Location: time.UTC, TwelveHour: true}

func TestParseRacecards_Nested(t *testing.T) {
	body := `{"GB": {"Ascot": {
	  "2:30": {"race_id": "861234", "race_name": "King Edward VII Stakes", "distance": "1m4f", "going": "Good",
	           "runners": [{"horse_id": "h1", "name": "Sea Legend", "number": 1, "jockey": "R Moore", "trainer": "A O'Brien"},
	                       {"name": ""}]},
	  "1:30": {"race_name": "Queen Anne Stakes", "runners": []}
	}}}`

	races, err := ParseRacecards([]byte(body))
	require.NoError(t, err)
	require.Len(t, races, 2)
	assert.Equal(t, "1:30", races[0].OffTime)
	assert.Equal(t, "GB", races[1].Region)
	assert.Equal(t, "Ascot", races[1].Course)

	event, err := races[1].ToEvent("2024-06-18", twelveHourUTC)
	require.NoError(t, err)
	assert.Equal(t, "861234", event.EventID)
	assert.Equal(t, StatePre, event.State)
	assert.Equal(t, 14, event.StartTime.Hour())
	assert.Equal(t, "1m4f Good", event.StatusDetail.String)

	runners := races[1].ToResults()
	require.Len(t, runners, 2)
	assert.Equal(t, "h1", runners[0].ParticipantKey)
	assert.Equal(t, KindHorse, runners[0].ParticipantKind)
	assert.Equal(t, "#1", runners[0].PositionText.String)
	assert.Equal(t, DefaultHorseName, runners[1].Name)

	// No race_id: the key is derived from course, date and off time
	other, err := races[0].ToEvent("2024-06-18", twelveHourUTC)
	require.NoError(t, err)
	assert.Equal(t, RaceKey("", "Ascot", "2024-06-18", "1:30"), other.EventID)
}

func TestParseRaceResults(t *testing.T) {
	body := `[{"race_id": "861234", "course": "Ascot", "date": "2024-06-18", "off": "2:30",
	  "runners": [
	    {"horse_id": "h1", "horse": "Sea Legend", "pos": "1", "sp": "5/2F"},
	    {"horse_id": "h2", "horse": "Other", "pos": "PU"}
	  ]}]`

	results, err := ParseRaceResults([]byte(body))
	require.NoError(t, err)
	require.Len(t, results, 1)

	event, err := results[0].ToEvent("", twelveHourUTC)
	require.NoError(t, err)
	assert.Equal(t, StatePost, event.State)
	assert.Equal(t, "861234", event.EventID)
	assert.Equal(t, "Sea Legend", event.HomeName.String)

	rows := results[0].ToResults()
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Winner)
	assert.Equal(t, int32(1), rows[0].Position.Int32)
	assert.Equal(t, "5/2F", rows[0].Score.String)
	assert.False(t, rows[1].Position.Valid)
	assert.Equal(t, "PU", rows[1].PositionText.String)
}

func TestRaceStart_ClockFormats(t *testing.T) {
	tests := []struct {
		off   string
		clock RaceClock
		hour  int
		min   int
	}{
		{"2:30", twelveHourUTC, 14, 30},
		{"9:45", twelveHourUTC, 21, 45},
		{"12:15", twelveHourUTC, 12, 15},
		{"11:00", twelveHourUTC, 11, 0},
		{"09:30", RaceClock{Location: time.UTC}, 9, 30},
		{"14:30", RaceClock{Location: time.UTC}, 14, 30},
		{"2:30", RaceClock{Location: time.UTC}, 2, 30},
	}
	for _, tt := range tests {
		start, err := raceStart("2024-06-18", tt.off, tt.clock)
		require.NoError(t, err, tt.off)
		assert.Equal(t, tt.hour, start.Hour(), tt.off)
		assert.Equal(t, tt.min, start.Minute(), tt.off)
	}

	// A nil location is UTC
	start, err := raceStart("2024-06-18", "", RaceClock{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC), start)

	_, err = raceStart("2024-06-18", "half two", twelveHourUTC)
	assert.Error(t, err)
}

func TestRacecardRace_ToEventOn24HourClock(t *testing.T) {
	race := RacecardRace{RaceID: "9", Course: "Kempton", OffTime: "09:30"}
	event, err := race.ToEvent("2024-06-18", RaceClock{Location: time.UTC})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 18, 9, 30, 0, 0, time.UTC), event.StartTime)
}

func TestParseRacecards_Invalid(t *testing.T) {
	_, err := ParseRacecards([]byte(`{"GB": 1}`))
	assert.Error(t, err)

	races, err := ParseRacecards(nil)
	assert.NoError(t, err)
	assert.Empty(t, races)
}

func TestBadgeFlags_MergeIsMonotonic(t *testing.T) {
	stored := BadgeFlags{HotStreak: true, Veteran: true}
	computed := BadgeFlags{Titan: true}

	merged := stored.Merge(computed)
	assert.True(t, merged.HotStreak)
	assert.True(t, merged.Veteran)
	assert.True(t, merged.Titan)
	assert.Equal(t, []string{BadgeTitan}, merged.Newly(stored))
	assert.Equal(t, []string{BadgeHotStreak, BadgeTitan, BadgeVeteran}, merged.Names())
	assert.False(t, merged.Viral)

	// Inputs are untouched
	assert.False(t, stored.Titan)
}
