package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/boskobot/internal/dialog"
	"github.com/example/boskobot/internal/favorites"
	"github.com/example/boskobot/internal/sched"
)

// PGStates persists conversation state keyed by chat.
type PGStates struct {
	db *sqlx.DB
}

// NewPGStates wraps db as a dialog state store.
func NewPGStates(db *sqlx.DB) *PGStates { return &PGStates{db: db} }

func (p *PGStates) Load(ctx context.Context, chatID int64) (dialog.State, bool, error) {
	var raw []byte
	err := p.db.GetContext(ctx, &raw,
		`SELECT state FROM conversation_states WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return dialog.State{}, false, nil
	}
	if err != nil {
		return dialog.State{}, false, fmt.Errorf("select state: %w", err)
	}
	var st dialog.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return dialog.State{}, false, fmt.Errorf("decode state: %w", err)
	}
	return st, true, nil
}

func (p *PGStates) Save(ctx context.Context, chatID int64, st dialog.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO conversation_states (chat_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chat_id) DO UPDATE SET state = $2, updated_at = now()`,
		chatID, raw)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// PGFavorites persists per-user favorite sets.
type PGFavorites struct {
	db *sqlx.DB
}

// NewPGFavorites wraps db as a favorites store.
func NewPGFavorites(db *sqlx.DB) *PGFavorites { return &PGFavorites{db: db} }

func (p *PGFavorites) Load(ctx context.Context, userID int64) (favorites.Set, error) {
	var row struct {
		Flavors []byte `db:"flavors"`
		Shops   []byte `db:"shops"`
	}
	err := p.db.GetContext(ctx, &row,
		`SELECT flavors, shops FROM favorites WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return favorites.Set{}, nil
	}
	if err != nil {
		return favorites.Set{}, fmt.Errorf("select favorites: %w", err)
	}
	var set favorites.Set
	if err := json.Unmarshal(row.Flavors, &set.Flavors); err != nil {
		return favorites.Set{}, fmt.Errorf("decode flavors: %w", err)
	}
	if err := json.Unmarshal(row.Shops, &set.Shops); err != nil {
		return favorites.Set{}, fmt.Errorf("decode shops: %w", err)
	}
	return set, nil
}

func (p *PGFavorites) Save(ctx context.Context, userID int64, set favorites.Set) error {
	flavors, err := json.Marshal(set.Flavors)
	if err != nil {
		return fmt.Errorf("encode flavors: %w", err)
	}
	shops, err := json.Marshal(set.Shops)
	if err != nil {
		return fmt.Errorf("encode shops: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO favorites (user_id, flavors, shops, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET flavors = $2, shops = $3, updated_at = now()`,
		userID, flavors, shops)
	if err != nil {
		return fmt.Errorf("upsert favorites: %w", err)
	}
	return nil
}

// PGSchedules persists digest schedules, one row per user.
type PGSchedules struct {
	db *sqlx.DB
}

// NewPGSchedules wraps db as a schedule store.
func NewPGSchedules(db *sqlx.DB) *PGSchedules { return &PGSchedules{db: db} }

type scheduleRow struct {
	UserID   int64  `db:"user_id"`
	ChatID   int64  `db:"chat_id"`
	Hour     int    `db:"hour"`
	Minute   int    `db:"minute"`
	Days     []byte `db:"days"`
	Timezone string `db:"timezone"`
	Flavors  []byte `db:"flavors"`
	Shops    []byte `db:"shops"`
}

func (p *PGSchedules) All(ctx context.Context) ([]sched.Schedule, error) {
	var rows []scheduleRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT user_id, chat_id, hour, minute, days, timezone, flavors, shops
		FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("select schedules: %w", err)
	}
	out := make([]sched.Schedule, 0, len(rows))
	for _, r := range rows {
		s := sched.Schedule{
			UserID:   r.UserID,
			ChatID:   r.ChatID,
			Hour:     r.Hour,
			Minute:   r.Minute,
			Timezone: r.Timezone,
		}
		if err := json.Unmarshal(r.Days, &s.Days); err != nil {
			return nil, fmt.Errorf("decode days for user %d: %w", r.UserID, err)
		}
		if err := json.Unmarshal(r.Flavors, &s.Flavors); err != nil {
			return nil, fmt.Errorf("decode flavors for user %d: %w", r.UserID, err)
		}
		if err := json.Unmarshal(r.Shops, &s.Shops); err != nil {
			return nil, fmt.Errorf("decode shops for user %d: %w", r.UserID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *PGSchedules) Save(ctx context.Context, s sched.Schedule) error {
	days, err := json.Marshal(s.Days)
	if err != nil {
		return fmt.Errorf("encode days: %w", err)
	}
	flavors, err := json.Marshal(s.Flavors)
	if err != nil {
		return fmt.Errorf("encode flavors: %w", err)
	}
	shops, err := json.Marshal(s.Shops)
	if err != nil {
		return fmt.Errorf("encode shops: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO schedules (user_id, chat_id, hour, minute, days, timezone, flavors, shops, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id) DO UPDATE SET
			chat_id = $2, hour = $3, minute = $4, days = $5,
			timezone = $6, flavors = $7, shops = $8, updated_at = now()`,
		s.UserID, s.ChatID, s.Hour, s.Minute, days, s.Timezone, flavors, shops)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

func (p *PGSchedules) Delete(ctx context.Context, userID int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM schedules WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}
