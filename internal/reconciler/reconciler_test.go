package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipsterarena/backend/internal/client"
	"tipsterarena/backend/internal/config"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
)

func footballScoreboard(state, home, away string) string {
	return fmt.Sprintf(`{
	  "leagues": [{"name": "English Premier League"}],
	  "events": [{
	    "id": "704321",
	    "date": "2024-08-16T19:00Z",
	    "name": "Fulham at Manchester United",
	    "status": {"type": {"state": %q}},
	    "competitions": [{
	      "venue": {"id": "250", "fullName": "Old Trafford"},
	      "competitors": [
	        {"homeAway": "away", "score": %q, "team": {"id": "370", "displayName": "Fulham"}},
	        {"homeAway": "home", "score": %q, "team": {"id": "360", "displayName": "Manchester United"}}
	      ]
	    }]
	  }]
	}`, state, away, home)
}

const footballSummary = `{
  "boxscore": {"teams": [
    {"team": {"id": "360"}, "homeAway": "home", "statistics": [{"name": "totalShots", "displayValue": "14"}]},
    {"team": {"id": "370"}, "homeAway": "away", "statistics": [{"name": "totalShots", "displayValue": "9"}]}
  ]},
  "keyEvents": [
    {"type": {"type": "goal"}, "clock": {"displayValue": "87'"}, "team": {"id": "360"},
     "participants": [{"athlete": {"displayName": "Joshua Zirkzee"}}]}
  ]
}`

func testConfig() *config.Config {
	return &config.Config{
		FootballLeagues:     []string{"eng.1"},
		GolfTours:           []string{"pga"},
		TennisTours:         []string{"atp"},
		FootballDaysBack:    7,
		FootballDaysForward: 14,
		ReconcileLockTTL:    time.Minute,
	}
}

var testWindow = NewWindow(time.Date(2024, 8, 16, 0, 0, 0, 0, time.UTC), 1, 1)

func TestFootballJob_ReconcileIsIdempotent(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["soccer/eng.1"] = footballScoreboard("post", "1", "0")
	feed.summaries["704321"] = footballSummary
	archiver := &recordingArchiver{}

	job := NewFootballJob(feed, []string{"eng.1"}, store.store(), nil, archiver)

	res, err := job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 1, res.StatsReplaced)

	first := store.event(models.Football, "704321")
	require.NotNil(t, first)
	assert.Equal(t, models.StatePost, first.State)
	assert.Equal(t, "English Premier League", first.Competition)
	assert.Equal(t, int32(1), first.HomeScore.Int32)
	assert.Equal(t, int32(0), first.AwayScore.Int32)
	assert.True(t, first.HomeTeamID.Valid)
	assert.True(t, first.VenueID.Valid)

	stats := store.stats[first.ID]
	require.Len(t, stats, 2)
	assert.Equal(t, first.HomeTeamID, stats[0].TeamID)
	require.Len(t, store.keyEvents[first.ID], 1)

	res, err = job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.StatsReplaced, "completed event with stats is not refetched")
	assert.Equal(t, 0, res.Transitions)

	assert.Equal(t, 1, feed.calls(), "summary fetched once across two runs")
	assert.Equal(t, 1, store.eventCount(models.Football))
	assert.Len(t, store.stats[first.ID], 2)
	assert.Equal(t, first, store.event(models.Football, "704321"))

	assert.Contains(t, archiver.names, "football/scoreboard eng.1")
	assert.Contains(t, archiver.names, "football/summary 704321")
}

func TestFootballJob_ForceRefetchesSummary(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["soccer/eng.1"] = footballScoreboard("post", "2", "2")
	feed.summaries["704321"] = footballSummary

	job := NewFootballJob(feed, []string{"eng.1"}, store.store(), nil, nil)

	_, err := job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	res, err := job.Run(context.Background(), testWindow, Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.StatsReplaced)
	assert.Equal(t, 2, feed.calls())
	assert.Len(t, store.stats[store.event(models.Football, "704321").ID], 2)
}

func TestFootballJob_PreToInUpdatesInPlace(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	bus := notify.NewMemoryBus(10)
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background(), notify.EventTopic("football"), "")
	require.NoError(t, err)
	defer sub.Close()

	job := NewFootballJob(feed, []string{"eng.1"}, store.store(), bus, nil)

	feed.scoreboards["soccer/eng.1"] = footballScoreboard("pre", "", "")
	_, err = job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	pre := store.event(models.Football, "704321")
	assert.Equal(t, models.StatePre, pre.State)
	assert.False(t, pre.HomeScore.Valid)
	assert.Equal(t, 0, feed.calls(), "no summary before kick-off")

	feed.scoreboards["soccer/eng.1"] = footballScoreboard("in", "1", "0")
	res, err := job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transitions)

	live := store.event(models.Football, "704321")
	assert.Equal(t, pre.ID, live.ID)
	assert.Equal(t, models.StateIn, live.State)
	assert.Equal(t, int32(1), live.HomeScore.Int32)
	assert.Equal(t, 1, store.eventCount(models.Football))

	select {
	case n := <-sub.C:
		assert.Equal(t, notify.KindEventState, n.Kind)
		var change EventStateChange
		require.NoError(t, json.Unmarshal(n.Payload, &change))
		assert.Equal(t, models.StatePre, change.From)
		assert.Equal(t, models.StateIn, change.To)
		require.NotNil(t, change.HomeScore)
		assert.Equal(t, int32(1), *change.HomeScore)
	case <-time.After(time.Second):
		t.Fatal("expected a state change notification")
	}
}

func TestFootballJob_SummaryFailureKeepsEvent(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["soccer/eng.1"] = footballScoreboard("post", "3", "1")
	feed.summaryErr = &client.StatusError{StatusCode: http.StatusInternalServerError}

	job := NewFootballJob(feed, []string{"eng.1"}, store.store(), nil, nil)
	res, err := job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 0, res.StatsReplaced)
	e := store.event(models.Football, "704321")
	require.NotNil(t, e)
	assert.Equal(t, int32(3), e.HomeScore.Int32)

	// Stats arrive on the next run once the summary recovers
	feed.summaryErr = nil
	feed.summaries["704321"] = footballSummary
	res, err = job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.StatsReplaced)
}

func TestFootballJob_StatsStoreFailureCountsEventOnce(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["soccer/eng.1"] = footballScoreboard("post", "1", "0")
	feed.summaries["704321"] = footballSummary
	store.countErr = errors.New("connection reset")

	job := NewFootballJob(feed, []string{"eng.1"}, store.store(), nil, nil)
	res, err := job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, feed.calls(), "summary fetched when the count is unknown")
	assert.Equal(t, 1, res.StatsReplaced)

	store.countErr = nil
	store.replaceErr = errors.New("deadlock detected")
	res, err = job.Run(context.Background(), testWindow, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.StatsReplaced)
}

func TestFootballJob_InvalidEventIsSkipped(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["soccer/eng.1"] = `{"events": [{"id": "", "date": "2024-08-16T19:00Z"}, {"id": "2", "date": "soon"}]}`

	job := NewFootballJob(feed, []string{"eng.1"}, store.store(), nil, nil)
	res, err := job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, store.eventCount(models.Football))
}

func TestGolfJob_Leaderboard(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["golf/pga"] = `{
	  "leagues": [{"name": "PGA TOUR"}],
	  "events": [{
	    "id": "401580355",
	    "date": "2024-08-15T04:00Z",
	    "name": "FedEx St. Jude Championship",
	    "status": {"type": {"name": "STATUS_IN_PROGRESS"}},
	    "courses": [{"id": "777", "name": "TPC Southwind", "address": {"city": "Memphis", "country": "USA"}}],
	    "competitions": [{"competitors": [
	      {"id": "9478", "order": 1, "score": "-15", "athlete": {"displayName": "Scottie Scheffler"}},
	      {"id": "4375", "order": 2, "score": "-14", "athlete": {"displayName": "Hideki Matsuyama"}},
	      {"id": "1225", "order": 3, "score": "-12", "athlete": {"displayName": "Viktor Hovland"}}
	    ]}]
	  }]
	}`

	job := NewGolfJob(feed, []string{"pga"}, store.store(), nil, nil)
	for i := 0; i < 2; i++ {
		res, err := job.Run(context.Background(), testWindow, Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.ResultsReplaced)
	}

	e := store.event(models.Golf, "401580355")
	require.NotNil(t, e)
	assert.Equal(t, models.StateIn, e.State)
	assert.True(t, e.VenueID.Valid)

	rows := store.results[e.ID]
	require.Len(t, rows, 3)
	assert.Equal(t, "Scottie Scheffler", rows[0].Name)
	assert.True(t, rows[0].ParticipantID.Valid)
	assert.Len(t, store.participants, 3)
	assert.Equal(t, 1, store.eventCount(models.Golf))
}

func TestTennisJob_EachMatchIsAnEvent(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["tennis/atp"] = `{
	  "events": [{
	    "id": "172",
	    "name": "US Open",
	    "date": "2024-08-26T15:00Z",
	    "groupings": [{
	      "grouping": {"displayName": "Men's Singles"},
	      "competitions": [
	        {"id": "9001", "date": "2024-08-26T16:00Z", "status": {"type": {"state": "post"}},
	         "competitors": [
	           {"order": 1, "winner": true, "athlete": {"id": "a1", "displayName": "Jannik Sinner"}, "linescores": [{"value": 6}, {"value": 6}, {"value": 6}]},
	           {"order": 2, "athlete": {"id": "a2", "displayName": "Mackenzie McDonald"}, "linescores": [{"value": 2}, {"value": 2}, {"value": 1}]}
	         ]},
	        {"id": "9002", "date": "2024-08-26T18:00Z", "status": {"type": {"state": "pre"}},
	         "competitors": [
	           {"order": 1, "athlete": {"id": "a3", "displayName": "Carlos Alcaraz"}},
	           {"order": 2, "athlete": {"id": "a4", "displayName": "Li Tu"}}
	         ]}
	      ]
	    }]
	  }]
	}`

	job := NewTennisJob(feed, []string{"atp"}, store.store(), nil, nil)
	res, err := job.Run(context.Background(), testWindow, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Upserted)
	assert.Equal(t, 2, store.eventCount(models.Tennis))

	played := store.event(models.Tennis, "9001")
	require.NotNil(t, played)
	assert.Equal(t, "US Open - Men's Singles", played.Competition)
	assert.Equal(t, int32(3), played.HomeScore.Int32)
	assert.Equal(t, int32(0), played.AwayScore.Int32)

	rows := store.results[played.ID]
	require.Len(t, rows, 2)
	assert.Equal(t, "6 6 6", rows[0].Score.String)
	assert.True(t, rows[0].Winner)
}

func TestReconciler_FailingSportDoesNotStopNext(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.errs["soccer/eng.1"] = &client.StatusError{StatusCode: http.StatusBadGateway}
	feed.scoreboards["golf/pga"] = `{"events": [{"id": "1", "date": "2024-08-15T04:00Z", "status": {"type": {"state": "pre"}}}]}`

	cfg := testConfig()
	r := New(cfg, store.store().Events, nil,
		NewFootballJob(feed, cfg.FootballLeagues, store.store(), nil, nil),
		NewGolfJob(feed, cfg.GolfTours, store.store(), nil, nil),
	)

	results := r.Run(context.Background(), []models.Sport{models.Football, models.Golf}, Options{})
	require.Len(t, results, 2)

	assert.Equal(t, models.Football, results[0].Sport)
	assert.Error(t, results[0].Err)

	assert.Equal(t, models.Golf, results[1].Sport)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, results[1].Upserted)
}

func TestReconciler_UnknownSport(t *testing.T) {
	r := New(testConfig(), newMemStore().store().Events, nil)
	results := r.Run(context.Background(), []models.Sport{models.Tennis}, Options{})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, ErrUnknownSport)
}

func TestReconciler_OverlappingRunIsSkipped(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()
	locker := NewLocalLocker()
	r := New(cfg, store.store().Events, locker,
		NewFootballJob(newFakeFeed(), cfg.FootballLeagues, store.store(), nil, nil),
	)

	release, err := locker.TryLock(context.Background(), "lock:reconcile:football", time.Minute)
	require.NoError(t, err)

	results := r.Run(context.Background(), []models.Sport{models.Football}, Options{})
	assert.ErrorIs(t, results[0].Err, ErrAlreadyRunning)

	release()
	results = r.Run(context.Background(), []models.Sport{models.Football}, Options{})
	assert.NoError(t, results[0].Err)
}

func TestReconciler_RunLiveOnlyRunsLiveSports(t *testing.T) {
	store := newMemStore()
	feed := newFakeFeed()
	feed.scoreboards["soccer/eng.1"] = footballScoreboard("in", "0", "0")
	feed.summaries["704321"] = footballSummary

	cfg := testConfig()
	r := New(cfg, store.store().Events, nil,
		NewFootballJob(feed, cfg.FootballLeagues, store.store(), nil, nil),
		NewGolfJob(feed, cfg.GolfTours, store.store(), nil, nil),
	)

	assert.Empty(t, r.RunLive(context.Background()), "nothing live yet")

	r.Run(context.Background(), []models.Sport{models.Football}, Options{})

	results := r.RunLive(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, models.Football, results[0].Sport)
}

func TestReconciler_SportsOrder(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()
	feed := newFakeFeed()
	r := New(cfg, store.store().Events, nil,
		NewTennisJob(feed, nil, store.store(), nil, nil),
		NewFootballJob(feed, nil, store.store(), nil, nil),
	)
	assert.Equal(t, []models.Sport{models.Football, models.Tennis}, r.Sports())
}

func TestWindow(t *testing.T) {
	w := NewWindow(time.Date(2024, 6, 18, 15, 30, 0, 0, time.UTC), 1, 2)
	assert.Equal(t, time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC), w.To)
	assert.Len(t, w.Days(), 4)

	cfg := testConfig()
	fw := WindowFor(cfg, models.Football, time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), fw.From)
	assert.Equal(t, time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), fw.To)
}
