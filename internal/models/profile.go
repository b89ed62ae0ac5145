package models

import "time"

// TipsterProfile is created with the user and carries counters, badges and
// monetization fields.
type TipsterProfile struct {
	ID              int64      `db:"id"`
	UserID          int64      `db:"user_id"`
	TotalTips       int        `db:"total_tips"`
	Wins            int        `db:"wins"`
	Losses          int        `db:"losses"`
	SubscriberCount int        `db:"subscriber_count"`
	RevenueShare    float64    `db:"revenue_share"`
	Badges          BadgeFlags `db:"-"`
	DateJoined      time.Time  `db:"date_joined"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// WinRate returns wins over verified tips, 0 when nothing is verified
func (p *TipsterProfile) WinRate() float64 {
	verified := p.Wins + p.Losses
	if verified == 0 {
		return 0
	}
	return float64(p.Wins) / float64(verified)
}

// Badge names as persisted and published
const (
	BadgeHotStreak          = "hot_streak"
	BadgeBlazing            = "blazing"
	BadgeColdStreak         = "cold_streak"
	BadgeTitan              = "titan"
	BadgeFastStarter        = "fast_starter"
	BadgeFootballOracle     = "football_oracle"
	BadgeGolfOutright       = "golf_outright"
	BadgeCrystalBallCracked = "crystal_ball_cracked"
	BadgeLongShot           = "long_shot"
	BadgeMoonshot           = "moonshot"
	BadgeNightOwl           = "night_owl"
	BadgeCrowdFavourite     = "crowd_favourite"
	BadgeMentor             = "mentor"
	BadgeVeteran            = "veteran"
	BadgeViral              = "viral"
)

// BadgeFlags holds one boolean per achievement
type BadgeFlags struct {
	HotStreak          bool `json:"hot_streak"`
	Blazing            bool `json:"blazing"`
	ColdStreak         bool `json:"cold_streak"`
	Titan              bool `json:"titan"`
	FastStarter        bool `json:"fast_starter"`
	FootballOracle     bool `json:"football_oracle"`
	GolfOutright       bool `json:"golf_outright"`
	CrystalBallCracked bool `json:"crystal_ball_cracked"`
	LongShot           bool `json:"long_shot"`
	Moonshot           bool `json:"moonshot"`
	NightOwl           bool `json:"night_owl"`
	CrowdFavourite     bool `json:"crowd_favourite"`
	Mentor             bool `json:"mentor"`
	Veteran            bool `json:"veteran"`
	Viral              bool `json:"viral"`
}

func (b *BadgeFlags) pairs() []struct {
	name string
	set  *bool
} {
	return []struct {
		name string
		set  *bool
	}{
		{BadgeHotStreak, &b.HotStreak},
		{BadgeBlazing, &b.Blazing},
		{BadgeColdStreak, &b.ColdStreak},
		{BadgeTitan, &b.Titan},
		{BadgeFastStarter, &b.FastStarter},
		{BadgeFootballOracle, &b.FootballOracle},
		{BadgeGolfOutright, &b.GolfOutright},
		{BadgeCrystalBallCracked, &b.CrystalBallCracked},
		{BadgeLongShot, &b.LongShot},
		{BadgeMoonshot, &b.Moonshot},
		{BadgeNightOwl, &b.NightOwl},
		{BadgeCrowdFavourite, &b.CrowdFavourite},
		{BadgeMentor, &b.Mentor},
		{BadgeVeteran, &b.Veteran},
		{BadgeViral, &b.Viral},
	}
}

// Merge ORs other into a copy of b. A flag that is set stays set.
func (b BadgeFlags) Merge(other BadgeFlags) BadgeFlags {
	merged := b
	mp, op := merged.pairs(), other.pairs()
	for i := range mp {
		*mp[i].set = *mp[i].set || *op[i].set
	}
	return merged
}

// Names lists the set flags in declaration order
func (b BadgeFlags) Names() []string {
	var names []string
	for _, p := range b.pairs() {
		if *p.set {
			names = append(names, p.name)
		}
	}
	return names
}

// Newly lists flags set in b but not in prev
func (b BadgeFlags) Newly(prev BadgeFlags) []string {
	var names []string
	cur, old := b.pairs(), prev.pairs()
	for i := range cur {
		if *cur[i].set && !*old[i].set {
			names = append(names, cur[i].name)
		}
	}
	return names
}

