package badges

import (
	"time"

	"tipsterarena/backend/internal/models"
)

const (
	streakWindow      = 10
	sportStreakWindow = 5

	hotStreakWins      = 3
	blazingWins        = 5
	coldStreakLosses   = 3
	crystalBallLosses  = 5
	titanMinTips       = 20
	titanWinPercent    = 70
	footballOracleWins = 5

	crowdFavouriteLikes = 100
	viralShares         = 50
	mentorAuthors       = 10
	veteranAge          = 365 * 24 * time.Hour
	fastStartWindow     = 24 * time.Hour

	golfOutrightBetType = "tournament outright"
)

// Facts is everything the rules look at for one tipster
type Facts struct {
	Profile *models.TipsterProfile

	// Most recent first, verified only
	Recent         []*models.Tip
	RecentFootball []*models.Tip

	VerifiedTotal int
	VerifiedWins  int
	FirstWin      *models.Tip
	GolfOutright  bool
	WonTips       []*models.Tip
	TipTimes      []time.Time

	MaxLikes         int
	MaxShares        int
	CommentedAuthors int

	Now      time.Time
	Location *time.Location
}

// leadingRun counts tips with status from the head of a most-recent-first list
func leadingRun(tips []*models.Tip, status models.TipStatus) int {
	n := 0
	for _, t := range tips {
		if t.Status != status {
			break
		}
		n++
	}
	return n
}

// Compute applies every rule to f. It returns only what f earns now; merging
// with stored flags is the caller's job.
func Compute(f Facts) models.BadgeFlags {
	var b models.BadgeFlags

	recent := f.Recent
	if len(recent) > streakWindow {
		recent = recent[:streakWindow]
	}
	wins := leadingRun(recent, models.TipWon)
	losses := leadingRun(recent, models.TipLost)

	b.HotStreak = wins >= hotStreakWins
	b.Blazing = wins >= blazingWins
	b.ColdStreak = losses >= coldStreakLosses
	b.CrystalBallCracked = losses >= crystalBallLosses

	b.Titan = f.VerifiedTotal >= titanMinTips && f.VerifiedWins*100 >= titanWinPercent*f.VerifiedTotal

	if f.FirstWin != nil && f.Profile != nil {
		b.FastStarter = f.FirstWin.CreatedAt.Sub(f.Profile.DateJoined) <= fastStartWindow
	}

	football := f.RecentFootball
	if len(football) > sportStreakWindow {
		football = football[:sportStreakWindow]
	}
	b.FootballOracle = leadingRun(football, models.TipWon) >= footballOracleWins

	b.GolfOutright = f.GolfOutright

	for _, t := range f.WonTips {
		if IsLongShot(t.Odds) {
			b.LongShot = true
		}
		if IsMoonshot(t.Odds) {
			b.Moonshot = true
		}
	}

	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, created := range f.TipTimes {
		if h := created.In(loc).Hour(); h >= 2 && h < 4 {
			b.NightOwl = true
			break
		}
	}

	b.CrowdFavourite = f.MaxLikes >= crowdFavouriteLikes
	b.Viral = f.MaxShares >= viralShares
	b.Mentor = f.CommentedAuthors >= mentorAuthors

	if f.Profile != nil && !f.Profile.DateJoined.IsZero() {
		b.Veteran = f.Now.Sub(f.Profile.DateJoined) >= veteranAge
	}

	return b
}
