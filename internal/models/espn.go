package models

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ESPN-style scoreboard and summary payloads. Only the fields the reconciler
// maps are declared; everything else in the provider JSON is ignored.

// FlexString accepts a JSON string, number or {"value","displayValue"} object.
// Score fields change shape between ESPN sports.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case '{':
		var obj struct {
			Value        *float64 `json:"value"`
			DisplayValue string   `json:"displayValue"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.DisplayValue != "" {
			*f = FlexString(obj.DisplayValue)
		} else if obj.Value != nil {
			*f = FlexString(strconv.FormatFloat(*obj.Value, 'f', -1, 64))
		}
	default:
		*f = FlexString(string(data))
	}
	return nil
}

func (f FlexString) String() string { return string(f) }

// Int parses the value as an integer score
func (f FlexString) Int() (int, bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int(v), true
	}
	return 0, false
}

// ESPNScoreboard is the body of GET {sport}/scoreboard
type ESPNScoreboard struct {
	Leagues []ESPNLeague `json:"leagues"`
	Events  []ESPNEvent  `json:"events"`
}

type ESPNLeague struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// LeagueName returns the first league's name or a default
func (s *ESPNScoreboard) LeagueName(def string) string {
	if len(s.Leagues) > 0 {
		return orDefault(s.Leagues[0].Name, def)
	}
	return def
}

type ESPNEvent struct {
	ID           string            `json:"id"`
	Date         string            `json:"date"`
	EndDate      string            `json:"endDate"`
	Name         string            `json:"name"`
	ShortName    string            `json:"shortName"`
	Status       ESPNStatus        `json:"status"`
	Competitions []ESPNCompetition `json:"competitions"`
	Groupings    []ESPNGrouping    `json:"groupings"`
	Courses      []ESPNCourse      `json:"courses"`
}

type ESPNGrouping struct {
	Grouping struct {
		DisplayName string `json:"displayName"`
	} `json:"grouping"`
	Competitions []ESPNCompetition `json:"competitions"`
}

type ESPNCourse struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Address ESPNAddress `json:"address"`
}

type ESPNStatus struct {
	DisplayClock string `json:"displayClock"`
	Period       int    `json:"period"`
	Type         struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		State       string `json:"state"`
		Completed   bool   `json:"completed"`
		Description string `json:"description"`
		Detail      string `json:"detail"`
		ShortDetail string `json:"shortDetail"`
	} `json:"type"`
}

type ESPNCompetition struct {
	ID          string           `json:"id"`
	Date        string           `json:"date"`
	Status      ESPNStatus       `json:"status"`
	Venue       *ESPNVenue       `json:"venue"`
	Competitors []ESPNCompetitor `json:"competitors"`
	Round       struct {
		DisplayName string `json:"displayName"`
	} `json:"round"`
}

type ESPNVenue struct {
	ID       string      `json:"id"`
	FullName string      `json:"fullName"`
	Address  ESPNAddress `json:"address"`
}

type ESPNAddress struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type ESPNCompetitor struct {
	ID         string          `json:"id"`
	HomeAway   string          `json:"homeAway"`
	Order      int             `json:"order"`
	Winner     bool            `json:"winner"`
	Score      FlexString      `json:"score"`
	Team       *ESPNTeam       `json:"team"`
	Athlete    *ESPNAthlete    `json:"athlete"`
	Linescores []ESPNLinescore `json:"linescores"`
	Status     struct {
		Position struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"position"`
		Thru int `json:"thru"`
	} `json:"status"`
}

type ESPNTeam struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	ShortDisplayName string `json:"shortDisplayName"`
	Abbreviation     string `json:"abbreviation"`
}

type ESPNAthlete struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	FullName    string `json:"fullName"`
	Flag        struct {
		Alt string `json:"alt"`
	} `json:"flag"`
}

type ESPNLinescore struct {
	Value  float64 `json:"value"`
	Winner bool    `json:"winner"`
}

// ESPNSummary is the body of GET {sport}/summary?event={id}
type ESPNSummary struct {
	Boxscore struct {
		Teams []ESPNBoxscoreTeam `json:"teams"`
	} `json:"boxscore"`
	KeyEvents []ESPNKeyEvent `json:"keyEvents"`
}

type ESPNBoxscoreTeam struct {
	Team       ESPNTeam `json:"team"`
	HomeAway   string   `json:"homeAway"`
	Statistics []struct {
		Name         string     `json:"name"`
		DisplayValue FlexString `json:"displayValue"`
	} `json:"statistics"`
}

type ESPNKeyEvent struct {
	ID   string `json:"id"`
	Type struct {
		ID   string `json:"id"`
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"type"`
	Text  string `json:"text"`
	Clock struct {
		DisplayValue string `json:"displayValue"`
	} `json:"clock"`
	Team *struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"team"`
	Participants []struct {
		Athlete ESPNAthlete `json:"athlete"`
	} `json:"participants"`
}

var providerTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02",
}

// ParseProviderTime parses the handful of timestamp layouts ESPN emits
func ParseProviderTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range providerTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// PrimaryCompetition returns the first competition of an event, or nil
func (e *ESPNEvent) PrimaryCompetition() *ESPNCompetition {
	if len(e.Competitions) == 0 {
		return nil
	}
	return &e.Competitions[0]
}

// Matches flattens tennis draws: matches live under groupings (one per draw)
// or directly under competitions.
func (e *ESPNEvent) Matches() []ESPNCompetition {
	matches := make([]ESPNCompetition, 0, len(e.Competitions))
	matches = append(matches, e.Competitions...)
	for _, g := range e.Groupings {
		matches = append(matches, g.Competitions...)
	}
	return matches
}

// StateCandidates lists status fields from most to least specific
func (s ESPNStatus) StateCandidates() []string {
	candidates := []string{s.Type.State, s.Type.Name, s.Type.Description}
	if s.Type.Completed {
		candidates = append(candidates, "completed")
	}
	return candidates
}

func (s ESPNStatus) isEmpty() bool {
	return s.Type.State == "" && s.Type.Name == "" && s.Type.Description == ""
}

// Home returns the home competitor. Falls back to order 1 when homeAway is absent.
func (c *ESPNCompetition) Home() *ESPNCompetitor {
	return c.side("home", "away", 0)
}

// Away returns the away competitor. Falls back to order 2 when homeAway is absent.
func (c *ESPNCompetition) Away() *ESPNCompetitor {
	return c.side("away", "home", 1)
}

// side finds the competitor labelled homeAway. Without a label it falls back
// to order, then position, never picking one labelled as the other side.
func (c *ESPNCompetition) side(homeAway, other string, index int) *ESPNCompetitor {
	for i := range c.Competitors {
		if strings.EqualFold(c.Competitors[i].HomeAway, homeAway) {
			return &c.Competitors[i]
		}
	}
	if len(c.Competitors) != 2 {
		return nil
	}
	claimed := func(i int) bool {
		return strings.EqualFold(c.Competitors[i].HomeAway, other)
	}
	for i := range c.Competitors {
		if c.Competitors[i].Order == index+1 && !claimed(i) {
			return &c.Competitors[i]
		}
	}
	if !claimed(index) {
		return &c.Competitors[index]
	}
	if !claimed(1 - index) {
		return &c.Competitors[1-index]
	}
	return nil
}

// DisplayName returns the team or athlete name, or def
func (c *ESPNCompetitor) DisplayName(def string) string {
	if c.Team != nil {
		return orDefault(c.Team.DisplayName, def)
	}
	if c.Athlete != nil {
		return orDefault(c.Athlete.DisplayName, orDefault(c.Athlete.FullName, def))
	}
	return def
}

// ProviderID returns the team or athlete provider ID
func (c *ESPNCompetitor) ProviderID() string {
	if c.Team != nil && c.Team.ID != "" {
		return c.Team.ID
	}
	if c.Athlete != nil && c.Athlete.ID != "" {
		return c.Athlete.ID
	}
	return c.ID
}

// ToTeam converts a competitor into a Team. Nil when the competitor is an athlete.
func (c *ESPNCompetitor) ToTeam(sport Sport) *Team {
	if c.Team == nil && c.Athlete != nil {
		return nil
	}
	name := c.DisplayName(DefaultTeamName)
	team := &Team{
		Sport:        sport,
		ProviderKey:  EntityKey(c.ProviderID(), name),
		Name:         name,
		Abbreviation: DefaultUnknown,
	}
	if c.Team != nil {
		team.Abbreviation = orDefault(c.Team.Abbreviation, DefaultUnknown)
	}
	return team
}

// ToParticipant converts an athlete competitor into a Participant
func (c *ESPNCompetitor) ToParticipant(sport Sport) *Participant {
	name := c.DisplayName(DefaultPlayerName)
	p := &Participant{
		Sport:       sport,
		Kind:        KindPlayer,
		ProviderKey: EntityKey(c.ProviderID(), name),
		Name:        name,
	}
	if c.Athlete != nil && c.Athlete.Flag.Alt != "" {
		p.Country = sql.NullString{String: c.Athlete.Flag.Alt, Valid: true}
	}
	return p
}

// ToVenue converts an ESPN venue into a Venue
func (v *ESPNVenue) ToVenue() *Venue {
	name := orDefault(v.FullName, DefaultUnknown)
	return &Venue{
		Key:     EntityKey(v.ID, name),
		Name:    name,
		City:    orDefault(v.Address.City, DefaultUnknown),
		Country: orDefault(v.Address.Country, DefaultUnknown),
	}
}

// ToVenue converts a golf course into a Venue
func (c *ESPNCourse) ToVenue() *Venue {
	v := ESPNVenue{ID: c.ID, FullName: c.Name, Address: c.Address}
	return v.ToVenue()
}

// ToEvent converts a scoreboard event into an Event. Team and venue IDs are
// resolved by the caller.
func (e *ESPNEvent) ToEvent(sport Sport, competition string) (*Event, error) {
	comp := e.PrimaryCompetition()
	status := e.Status
	if status.isEmpty() && comp != nil {
		status = comp.Status
	}
	date := e.Date
	if date == "" && comp != nil {
		date = comp.Date
	}
	return buildEvent(sport, competition, e.ID, orDefault(e.Name, e.ShortName), date, status, comp)
}

// ToMatchEvent converts a single tennis match into an Event. Matches carry
// their own provider ID and are stored as events in their own right.
func (c *ESPNCompetition) ToMatchEvent(sport Sport, tournament, draw string) (*Event, error) {
	competition := tournament
	if draw != "" {
		competition = tournament + " - " + draw
	}
	event, err := buildEvent(sport, competition, c.ID, "", c.Date, c.Status, c)
	if err != nil {
		return nil, err
	}

	// Tennis scores are sets won
	home, away := c.Home(), c.Away()
	if home != nil && away != nil && !event.HomeScore.Valid && !event.AwayScore.Valid {
		h, a := setsWon(home.Linescores, away.Linescores)
		if h+a > 0 {
			event.HomeScore = sql.NullInt32{Int32: int32(h), Valid: true}
			event.AwayScore = sql.NullInt32{Int32: int32(a), Valid: true}
		}
	}
	return event, nil
}

func buildEvent(sport Sport, competition, id, name, date string, status ESPNStatus, comp *ESPNCompetition) (*Event, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("event has no provider id")
	}
	start, err := ParseProviderTime(date)
	if err != nil {
		return nil, err
	}

	event := &Event{
		Sport:       sport,
		EventID:     id,
		Competition: orDefault(competition, DefaultUnknown),
		StartTime:   start,
		State:       NormalizeState(status.StateCandidates()...),
	}
	if detail := orDefault(status.Type.ShortDetail, status.Type.Detail); detail != "" {
		event.StatusDetail = sql.NullString{String: detail, Valid: true}
	}

	def := DefaultTeamName
	if sport != Football {
		def = DefaultPlayerName
	}

	if comp != nil {
		if home := comp.Home(); home != nil {
			event.HomeName = sql.NullString{String: home.DisplayName(def), Valid: true}
			if n, ok := home.Score.Int(); ok {
				event.HomeScore = sql.NullInt32{Int32: int32(n), Valid: true}
			}
		}
		if away := comp.Away(); away != nil {
			event.AwayName = sql.NullString{String: away.DisplayName(def), Valid: true}
			if n, ok := away.Score.Int(); ok {
				event.AwayScore = sql.NullInt32{Int32: int32(n), Valid: true}
			}
		}
	}

	switch {
	case strings.TrimSpace(name) != "":
		event.Name = strings.TrimSpace(name)
	case event.HomeName.Valid && event.AwayName.Valid:
		event.Name = event.HomeName.String + " vs " + event.AwayName.String
	default:
		event.Name = DefaultEventName
	}

	return event, nil
}

func setsWon(home, away []ESPNLinescore) (int, int) {
	var h, a int
	for i := 0; i < len(home) && i < len(away); i++ {
		switch {
		case home[i].Winner || home[i].Value > away[i].Value:
			h++
		case away[i].Winner || away[i].Value > home[i].Value:
			a++
		}
	}
	return h, a
}

// ToLeaderboard converts golf competitors into result rows
func (c *ESPNCompetition) ToLeaderboard(sport Sport) []*EventResult {
	results := make([]*EventResult, 0, len(c.Competitors))
	for i := range c.Competitors {
		comp := &c.Competitors[i]
		player := comp.ToParticipant(sport)
		r := &EventResult{
			Name:            player.Name,
			ParticipantKey:  player.ProviderKey,
			ParticipantKind: KindPlayer,
			Winner:          comp.Winner,
		}
		if pos := comp.Status.Position.DisplayName; pos != "" {
			r.PositionText = sql.NullString{String: pos, Valid: true}
			if n, err := strconv.Atoi(strings.TrimPrefix(pos, "T")); err == nil {
				r.Position = sql.NullInt32{Int32: int32(n), Valid: true}
			}
		} else if comp.Order > 0 {
			r.Position = sql.NullInt32{Int32: int32(comp.Order), Valid: true}
		}
		if score := comp.Score.String(); score != "" {
			r.Score = sql.NullString{String: score, Valid: true}
		}
		if len(comp.Linescores) > 0 {
			r.Detail = sql.NullString{String: joinLinescores(comp.Linescores, ","), Valid: true}
		}
		results = append(results, r)
	}
	return results
}

// ToMatchResults converts the two sides of a tennis match into result rows
// carrying the set scores.
func (c *ESPNCompetition) ToMatchResults(sport Sport) []*EventResult {
	results := make([]*EventResult, 0, 2)
	for _, side := range []struct {
		name string
		comp *ESPNCompetitor
	}{{"home", c.Home()}, {"away", c.Away()}} {
		if side.comp == nil {
			continue
		}
		player := side.comp.ToParticipant(sport)
		r := &EventResult{
			Name:            player.Name,
			ParticipantKey:  player.ProviderKey,
			ParticipantKind: KindPlayer,
			Side:            sql.NullString{String: side.name, Valid: true},
			Winner:          side.comp.Winner,
		}
		if len(side.comp.Linescores) > 0 {
			r.Score = sql.NullString{String: joinLinescores(side.comp.Linescores, " "), Valid: true}
		}
		results = append(results, r)
	}
	return results
}

func joinLinescores(scores []ESPNLinescore, sep string) string {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = strconv.FormatFloat(s.Value, 'f', -1, 64)
	}
	return strings.Join(parts, sep)
}

// ToStats converts the summary boxscore into one row per side. homeKey and
// awayKey are the provider team IDs from the scoreboard, used when the
// boxscore does not carry homeAway itself.
func (s *ESPNSummary) ToStats(homeKey, awayKey string) []*EventStat {
	stats := make([]*EventStat, 0, 2)
	seen := make(map[string]bool, 2)
	for i, bt := range s.Boxscore.Teams {
		side := strings.ToLower(bt.HomeAway)
		if side != "home" && side != "away" {
			side = sideForTeam(bt.Team.ID, homeKey, awayKey)
		}
		if side == "" && len(s.Boxscore.Teams) == 2 {
			side = []string{"home", "away"}[i]
		}
		if side == "" || seen[side] {
			continue
		}
		seen[side] = true

		stat := &EventStat{Side: side}
		for _, st := range bt.Statistics {
			value := st.DisplayValue
			switch st.Name {
			case "possessionPct":
				if v, err := strconv.ParseFloat(strings.TrimSuffix(value.String(), "%"), 64); err == nil {
					stat.Possession = sql.NullFloat64{Float64: v, Valid: true}
				}
			case "totalShots":
				stat.Shots = nullInt32(value)
			case "shotsOnTarget":
				stat.ShotsOnTarget = nullInt32(value)
			case "wonCorners":
				stat.Corners = nullInt32(value)
			case "foulsCommitted":
				stat.Fouls = nullInt32(value)
			case "yellowCards":
				stat.YellowCards = nullInt32(value)
			case "redCards":
				stat.RedCards = nullInt32(value)
			case "offsides":
				stat.Offsides = nullInt32(value)
			case "saves":
				stat.Saves = nullInt32(value)
			}
		}
		stats = append(stats, stat)
	}
	return stats
}

// ToKeyEvents keeps goals and cards from the summary feed, in feed order
func (s *ESPNSummary) ToKeyEvents(homeKey, awayKey string) []*KeyEvent {
	events := make([]*KeyEvent, 0, len(s.KeyEvents))
	for _, ke := range s.KeyEvents {
		kind := keyEventKind(ke.Type.Type, ke.Type.Text)
		if kind == "" {
			continue
		}
		player := DefaultPlayerName
		if len(ke.Participants) > 0 {
			a := ke.Participants[0].Athlete
			player = orDefault(a.DisplayName, orDefault(a.FullName, DefaultPlayerName))
		}
		k := &KeyEvent{
			Kind:       kind,
			PlayerName: player,
			Sequence:   len(events) + 1,
		}
		if ke.Clock.DisplayValue != "" {
			k.Minute = sql.NullString{String: ke.Clock.DisplayValue, Valid: true}
		}
		if ke.Team != nil {
			if side := sideForTeam(ke.Team.ID, homeKey, awayKey); side != "" {
				k.Side = sql.NullString{String: side, Valid: true}
			}
		}
		if ke.Text != "" {
			k.Detail = sql.NullString{String: ke.Text, Valid: true}
		}
		events = append(events, k)
	}
	return events
}

func keyEventKind(typ, text string) string {
	for _, s := range []string{typ, text} {
		s = strings.ToLower(s)
		switch {
		case strings.Contains(s, "yellow"):
			return KeyEventYellowCard
		case strings.Contains(s, "red-card"), strings.Contains(s, "red card"):
			return KeyEventRedCard
		case strings.Contains(s, "goal"), strings.Contains(s, "penalty---scored"):
			return KeyEventGoal
		}
	}
	return ""
}

func sideForTeam(teamID, homeKey, awayKey string) string {
	switch {
	case teamID == "":
		return ""
	case teamID == homeKey:
		return "home"
	case teamID == awayKey:
		return "away"
	}
	return ""
}

func nullInt32(v FlexString) sql.NullInt32 {
	if n, ok := v.Int(); ok {
		return sql.NullInt32{Int32: int32(n), Valid: true}
	}
	return sql.NullInt32{}
}
