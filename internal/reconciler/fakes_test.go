package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/repository"
)

// memStore implements every store interface in memory with the same
// conflict semantics as the Postgres repositories
type memStore struct {
	mu           sync.Mutex
	nextID       int64
	events       map[string]*models.Event
	teams        map[string]int64
	participants map[string]int64
	venues       map[string]int64
	stats        map[int64][]*models.EventStat
	keyEvents    map[int64][]*models.KeyEvent
	results      map[int64][]*models.EventResult

	countErr   error
	replaceErr error
	resultsErr error
}

func newMemStore() *memStore {
	return &memStore{
		events:       make(map[string]*models.Event),
		teams:        make(map[string]int64),
		participants: make(map[string]int64),
		venues:       make(map[string]int64),
		stats:        make(map[int64][]*models.EventStat),
		keyEvents:    make(map[int64][]*models.KeyEvent),
		results:      make(map[int64][]*models.EventResult),
	}
}

func (m *memStore) store() Store {
	return Store{
		Events:       memEvents{m},
		Teams:        memTeams{m},
		Participants: memParticipants{m},
		Venues:       memVenues{m},
		Stats:        memStats{m},
		Results:      memResults{m},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func eventKey(sport models.Sport, id string) string { return string(sport) + "|" + id }

func (m *memStore) event(sport models.Sport, id string) *models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventKey(sport, id)]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (m *memStore) eventCount(sport models.Sport) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Sport == sport {
			n++
		}
	}
	return n
}

type memEvents struct{ m *memStore }

func (s memEvents) Upsert(ctx context.Context, e *models.Event) (models.EventState, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	key := eventKey(e.Sport, e.EventID)
	existing, ok := s.m.events[key]
	if !ok {
		e.ID = s.m.id()
		cp := *e
		s.m.events[key] = &cp
		return "", nil
	}

	prev := existing.State
	e.ID = existing.ID
	if !e.HomeTeamID.Valid {
		e.HomeTeamID = existing.HomeTeamID
	}
	if !e.AwayTeamID.Valid {
		e.AwayTeamID = existing.AwayTeamID
	}
	if !e.HomeName.Valid {
		e.HomeName = existing.HomeName
	}
	if !e.AwayName.Valid {
		e.AwayName = existing.AwayName
	}
	if !e.VenueID.Valid {
		e.VenueID = existing.VenueID
	}
	cp := *e
	s.m.events[key] = &cp
	return prev, nil
}

func (s memEvents) GetByEventID(ctx context.Context, sport models.Sport, id string) (*models.Event, error) {
	if e := s.m.event(sport, id); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("event %s/%s: %w", sport, id, repository.ErrNotFound)
}

func (s memEvents) CountLive(ctx context.Context, sport models.Sport) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	n := 0
	for _, e := range s.m.events {
		if e.Sport == sport && e.State == models.StateIn {
			n++
		}
	}
	return n, nil
}

type memTeams struct{ m *memStore }

func (s memTeams) Upsert(ctx context.Context, t *models.Team) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := string(t.Sport) + "|" + t.ProviderKey
	if _, ok := s.m.teams[key]; !ok {
		s.m.teams[key] = s.m.id()
	}
	t.ID = s.m.teams[key]
	return nil
}

type memParticipants struct{ m *memStore }

func (s memParticipants) Upsert(ctx context.Context, p *models.Participant) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := string(p.Sport) + "|" + p.Kind + "|" + p.ProviderKey
	if _, ok := s.m.participants[key]; !ok {
		s.m.participants[key] = s.m.id()
	}
	p.ID = s.m.participants[key]
	return nil
}

type memVenues struct{ m *memStore }

func (s memVenues) Upsert(ctx context.Context, v *models.Venue) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.venues[v.Key]; !ok {
		s.m.venues[v.Key] = s.m.id()
	}
	v.ID = s.m.venues[v.Key]
	return nil
}

type memStats struct{ m *memStore }

func (s memStats) ReplaceForEvent(ctx context.Context, eventID int64, stats []*models.EventStat, keyEvents []*models.KeyEvent) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.replaceErr != nil {
		return s.m.replaceErr
	}
	s.m.stats[eventID] = stats
	s.m.keyEvents[eventID] = keyEvents
	return nil
}

func (s memStats) CountForEvent(ctx context.Context, eventID int64) (int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.countErr != nil {
		return 0, s.m.countErr
	}
	return len(s.m.stats[eventID]), nil
}

type memResults struct{ m *memStore }

func (s memResults) ReplaceForEvent(ctx context.Context, eventID int64, results []*models.EventResult) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.resultsErr != nil {
		return s.m.resultsErr
	}
	s.m.results[eventID] = results
	return nil
}

// fakeFeed serves canned scoreboard and summary bodies by sport path
type fakeFeed struct {
	mu           sync.Mutex
	scoreboards  map[string]string
	summaries    map[string]string
	errs         map[string]error
	summaryErr   error
	summaryCalls int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		scoreboards: make(map[string]string),
		summaries:   make(map[string]string),
		errs:        make(map[string]error),
	}
}

func (f *fakeFeed) FetchScoreboard(ctx context.Context, path string, from, to time.Time) (*models.ESPNScoreboard, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[path]; err != nil {
		return nil, nil, err
	}
	body, ok := f.scoreboards[path]
	if !ok {
		body = `{"events": []}`
	}
	var sb models.ESPNScoreboard
	if err := json.Unmarshal([]byte(body), &sb); err != nil {
		return nil, []byte(body), err
	}
	return &sb, []byte(body), nil
}

func (f *fakeFeed) FetchSummary(ctx context.Context, path, eventID string) (*models.ESPNSummary, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	if f.summaryErr != nil {
		return nil, nil, f.summaryErr
	}
	body, ok := f.summaries[eventID]
	if !ok {
		body = `{}`
	}
	var s models.ESPNSummary
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return nil, []byte(body), err
	}
	return &s, []byte(body), nil
}

func (f *fakeFeed) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaryCalls
}

// recordingArchiver remembers archived payload names
type recordingArchiver struct {
	mu    sync.Mutex
	names []string
}

func (a *recordingArchiver) Archive(ctx context.Context, sport, name string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(body) > 0 {
		a.names = append(a.names, sport+"/"+name)
	}
	return nil
}
