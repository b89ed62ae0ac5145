package models

import (
	"database/sql"
	"time"
)

// Event represents a canonical sporting fixture for any sport.
// (sport, event_id) is the natural key.
type Event struct {
	ID           int64          `db:"id"`
	Sport        Sport          `db:"sport"`
	EventID      string         `db:"event_id"`
	Name         string         `db:"name"`
	Competition  string         `db:"competition"`
	StartTime    time.Time      `db:"start_time"`
	State        EventState     `db:"state"`
	StatusDetail sql.NullString `db:"status_detail"`

	HomeTeamID sql.NullInt64  `db:"home_team_id"`
	AwayTeamID sql.NullInt64  `db:"away_team_id"`
	HomeName   sql.NullString `db:"home_name"`
	AwayName   sql.NullString `db:"away_name"`
	HomeScore  sql.NullInt32  `db:"home_score"`
	AwayScore  sql.NullInt32  `db:"away_score"`
	VenueID    sql.NullInt64  `db:"venue_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Team is a football club or national side
type Team struct {
	ID           int64     `db:"id"`
	Sport        Sport     `db:"sport"`
	ProviderKey  string    `db:"provider_key"`
	Name         string    `db:"name"`
	Abbreviation string    `db:"abbreviation"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Participant is an individual competitor: a golfer, tennis player or horse
type Participant struct {
	ID          int64          `db:"id"`
	Sport       Sport          `db:"sport"`
	Kind        string         `db:"kind"`
	ProviderKey string         `db:"provider_key"`
	Name        string         `db:"name"`
	Country     sql.NullString `db:"country"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Venue covers stadiums, golf courses and racecourses
type Venue struct {
	ID        int64     `db:"id"`
	Key       string    `db:"key"`
	Name      string    `db:"name"`
	City      string    `db:"city"`
	Country   string    `db:"country"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// EventStat holds one side's box-score line for an event
type EventStat struct {
	ID            int64           `db:"id"`
	EventID       int64           `db:"event_id"`
	Side          string          `db:"side"` // home or away
	TeamID        sql.NullInt64   `db:"team_id"`
	Possession    sql.NullFloat64 `db:"possession"`
	Shots         sql.NullInt32   `db:"shots"`
	ShotsOnTarget sql.NullInt32   `db:"shots_on_target"`
	Corners       sql.NullInt32   `db:"corners"`
	Fouls         sql.NullInt32   `db:"fouls"`
	YellowCards   sql.NullInt32   `db:"yellow_cards"`
	RedCards      sql.NullInt32   `db:"red_cards"`
	Offsides      sql.NullInt32   `db:"offsides"`
	Saves         sql.NullInt32   `db:"saves"`
	CreatedAt     time.Time       `db:"created_at"`
}

// Key event kinds kept from the summary feed
const (
	KeyEventGoal       = "goal"
	KeyEventYellowCard = "yellow_card"
	KeyEventRedCard    = "red_card"
)

// KeyEvent is a goal or card within an event
type KeyEvent struct {
	ID         int64          `db:"id"`
	EventID    int64          `db:"event_id"`
	Kind       string         `db:"kind"`
	Minute     sql.NullString `db:"minute"`
	Side       sql.NullString `db:"side"`
	PlayerName string         `db:"player_name"`
	Detail     sql.NullString `db:"detail"`
	Sequence   int            `db:"sequence"`
	CreatedAt  time.Time      `db:"created_at"`
}

// EventResult is one competitor row: a leaderboard line, a tennis side's set
// scores, or a race runner.
type EventResult struct {
	ID            int64          `db:"id"`
	EventID       int64          `db:"event_id"`
	ParticipantID sql.NullInt64  `db:"participant_id"`
	Name          string         `db:"name"`
	Side          sql.NullString `db:"side"`
	Position      sql.NullInt32  `db:"position"`
	PositionText  sql.NullString `db:"position_text"`
	Score         sql.NullString `db:"score"`
	Detail        sql.NullString `db:"detail"`
	Winner        bool           `db:"winner"`
	CreatedAt     time.Time      `db:"created_at"`

	// Resolution hints; not stored
	ParticipantKey  string `db:"-"`
	ParticipantKind string `db:"-"`
}

// IsFinal returns true if the event is completed
func (e *Event) IsFinal() bool {
	return e.State == StatePost
}

// IsActive returns true if the event is currently in progress
func (e *Event) IsActive() bool {
	return e.State == StateIn
}
