package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/models"
)

// StatsRepository owns event_stats and key_events
type StatsRepository struct {
	db *Database
}

// ReplaceForEvent deletes the stored stats and key events of an event and
// writes the new ones in one transaction.
func (r *StatsRepository) ReplaceForEvent(ctx context.Context, eventID int64, stats []*models.EventStat, keyEvents []*models.KeyEvent) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		// Lock the event row so two replacements for one event serialize
		if _, err := tx.Exec(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
			return fmt.Errorf("failed to lock event: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM event_stats WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("failed to delete stats: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM key_events WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("failed to delete key events: %w", err)
		}

		for _, s := range stats {
			s.EventID = eventID
			err := tx.QueryRow(ctx, `
				INSERT INTO event_stats (
					event_id, side, team_id, possession, shots, shots_on_target,
					corners, fouls, yellow_cards, red_cards, offsides, saves
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
				RETURNING id, created_at
			`,
				eventID, s.Side, s.TeamID, s.Possession, s.Shots, s.ShotsOnTarget,
				s.Corners, s.Fouls, s.YellowCards, s.RedCards, s.Offsides, s.Saves,
			).Scan(&s.ID, &s.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert %s stats: %w", s.Side, err)
			}
		}

		for _, k := range keyEvents {
			k.EventID = eventID
			err := tx.QueryRow(ctx, `
				INSERT INTO key_events (event_id, kind, minute, side, player_name, detail, sequence)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id, created_at
			`, eventID, k.Kind, k.Minute, k.Side, k.PlayerName, k.Detail, k.Sequence).Scan(&k.ID, &k.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert key event: %w", err)
			}
		}
		return nil
	})
	observe("replace", "event_stats", start, err)
	if err != nil {
		return err
	}

	log.Debug().
		Int64("event_id", eventID).
		Int("stats", len(stats)).
		Int("key_events", len(keyEvents)).
		Msg("Event stats replaced")

	return nil
}

// CountForEvent returns the number of stored stat rows for an event
func (r *StatsRepository) CountForEvent(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_stats WHERE event_id = $1`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count stats: %w", err)
	}
	return n, nil
}

// ListForEvent returns the stat rows of an event, home first
func (r *StatsRepository) ListForEvent(ctx context.Context, eventID int64) ([]*models.EventStat, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, event_id, side, team_id, possession, shots, shots_on_target,
		       corners, fouls, yellow_cards, red_cards, offsides, saves, created_at
		FROM event_stats
		WHERE event_id = $1
		ORDER BY CASE side WHEN 'home' THEN 0 ELSE 1 END
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.EventStat
	for rows.Next() {
		var s models.EventStat
		err := rows.Scan(
			&s.ID, &s.EventID, &s.Side, &s.TeamID, &s.Possession, &s.Shots, &s.ShotsOnTarget,
			&s.Corners, &s.Fouls, &s.YellowCards, &s.RedCards, &s.Offsides, &s.Saves, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}
	return stats, nil
}

// ListKeyEvents returns the key events of an event in feed order
func (r *StatsRepository) ListKeyEvents(ctx context.Context, eventID int64) ([]*models.KeyEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, event_id, kind, minute, side, player_name, detail, sequence, created_at
		FROM key_events
		WHERE event_id = $1
		ORDER BY sequence
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list key events: %w", err)
	}
	defer rows.Close()

	var events []*models.KeyEvent
	for rows.Next() {
		var k models.KeyEvent
		if err := rows.Scan(&k.ID, &k.EventID, &k.Kind, &k.Minute, &k.Side, &k.PlayerName, &k.Detail, &k.Sequence, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan key event: %w", err)
		}
		events = append(events, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key events: %w", err)
	}
	return events, nil
}

// ResultRepository owns event_results
type ResultRepository struct {
	db *Database
}

// ReplaceForEvent deletes and recreates the result rows of an event in one
// transaction
func (r *ResultRepository) ReplaceForEvent(ctx context.Context, eventID int64, results []*models.EventResult) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
			return fmt.Errorf("failed to lock event: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM event_results WHERE event_id = $1`, eventID); err != nil {
			return fmt.Errorf("failed to delete results: %w", err)
		}

		batch := &pgx.Batch{}
		for _, res := range results {
			res.EventID = eventID
			batch.Queue(`
				INSERT INTO event_results (
					event_id, participant_id, name, side, position, position_text, score, detail, winner
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, eventID, res.ParticipantID, res.Name, res.Side, res.Position, res.PositionText, res.Score, res.Detail, res.Winner)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert results: %w", err)
		}
		return nil
	})
	observe("replace", "event_results", start, err)
	if err != nil {
		return err
	}

	log.Debug().
		Int64("event_id", eventID).
		Int("results", len(results)).
		Msg("Event results replaced")

	return nil
}

// ListForEvent returns result rows ordered by position, unplaced last
func (r *ResultRepository) ListForEvent(ctx context.Context, eventID int64) ([]*models.EventResult, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, event_id, participant_id, name, side, position, position_text, score, detail, winner, created_at
		FROM event_results
		WHERE event_id = $1
		ORDER BY position NULLS LAST, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []*models.EventResult
	for rows.Next() {
		var res models.EventResult
		err := rows.Scan(
			&res.ID, &res.EventID, &res.ParticipantID, &res.Name, &res.Side, &res.Position,
			&res.PositionText, &res.Score, &res.Detail, &res.Winner, &res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}
