package models

import (
	"database/sql"
	"time"
)

// TipStatus is the verification lifecycle of a tip
type TipStatus string

const (
	TipPending TipStatus = "pending"
	TipWon     TipStatus = "won"
	TipLost    TipStatus = "lost"
	TipVoid    TipStatus = "void"
)

// IsVerified returns true for settled tips that count towards form.
// Void tips are settled but are neither wins nor losses.
func (s TipStatus) IsVerified() bool {
	return s == TipWon || s == TipLost
}

// Tip is a user-authored prediction
type Tip struct {
	ID         int64         `db:"id"`
	UserID     int64         `db:"user_id"`
	Sport      Sport         `db:"sport"`
	EventID    sql.NullInt64 `db:"event_id"`
	Selection  string        `db:"selection"`
	BetType    string        `db:"bet_type"`
	Odds       string        `db:"odds"`
	Confidence int           `db:"confidence"`
	Analysis   string        `db:"analysis"`
	Status     TipStatus     `db:"status"`
	VerifiedAt sql.NullTime  `db:"verified_at"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

// TipInput is the body of a tip submission
type TipInput struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Sport      string `json:"sport" binding:"required"`
	EventID    *int64 `json:"event_id,omitempty"`
	Selection  string `json:"selection" binding:"required"`
	BetType    string `json:"bet_type"`
	Odds       string `json:"odds" binding:"required"`
	Confidence int    `json:"confidence" binding:"required"`
	Analysis   string `json:"analysis"`
}

// ToTip converts a validated submission into a pending Tip
func (ti *TipInput) ToTip(sport Sport) *Tip {
	tip := &Tip{
		UserID:     ti.UserID,
		Sport:      sport,
		Selection:  ti.Selection,
		BetType:    ti.BetType,
		Odds:       ti.Odds,
		Confidence: ti.Confidence,
		Analysis:   ti.Analysis,
		Status:     TipPending,
	}
	if ti.EventID != nil && *ti.EventID > 0 {
		tip.EventID = sql.NullInt64{Int64: *ti.EventID, Valid: true}
	}
	return tip
}

// User is an account
type User struct {
	ID         int64     `db:"id"`
	Username   string    `db:"username"`
	DateJoined time.Time `db:"date_joined"`
}

// Like, Share and Comment are engagement on a tip

type Like struct {
	ID        int64     `db:"id"`
	TipID     int64     `db:"tip_id"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

type Share struct {
	ID        int64     `db:"id"`
	TipID     int64     `db:"tip_id"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

type Comment struct {
	ID        int64     `db:"id"`
	TipID     int64     `db:"tip_id"`
	UserID    int64     `db:"user_id"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
}

// Subscription links a subscriber to a tipster
type Subscription struct {
	ID           int64     `db:"id"`
	SubscriberID int64     `db:"subscriber_id"`
	TipsterID    int64     `db:"tipster_id"`
	CreatedAt    time.Time `db:"created_at"`
}
