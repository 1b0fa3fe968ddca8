package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

// Repository stores finished games in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts one finished game.
func (r *Repository) SaveResult(ctx context.Context, rec gamedto.GameRecord) error {
	if r == nil || r.db == nil {
		return nil
	}
	movesSANRaw, _ := json.Marshal(rec.MovesSAN)
	movesUCIRaw, _ := json.Marshal(rec.MovesUCI)
	durationMS := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if durationMS < 0 {
		durationMS = 0
	}

	q := `INSERT INTO vote_games (
	    game_id, result, moves_san, moves_uci, final_fen,
	    started_at, ended_at, duration_ms
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	  ON CONFLICT (game_id) DO UPDATE SET
	    result=EXCLUDED.result,
	    moves_san=EXCLUDED.moves_san,
	    moves_uci=EXCLUDED.moves_uci,
	    final_fen=EXCLUDED.final_fen,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.GameID, rec.Result, movesSANRaw, movesUCIRaw, rec.FinalFEN,
		rec.StartedAt, rec.EndedAt, durationMS,
	)
	if err != nil {
		return fmt.Errorf("save game result: %w", err)
	}
	return nil
}

// RecentGames lists finished games, newest first.
func (r *Repository) RecentGames(ctx context.Context, limit int) ([]gamedto.GameRecord, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT game_id, result, moves_san, moves_uci, final_fen, started_at, ended_at
	  FROM vote_games ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gamedto.GameRecord
	for rows.Next() {
		var rec gamedto.GameRecord
		var sanRaw, uciRaw []byte
		if err := rows.Scan(&rec.GameID, &rec.Result, &sanRaw, &uciRaw, &rec.FinalFEN, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(sanRaw, &rec.MovesSAN)
		_ = json.Unmarshal(uciRaw, &rec.MovesUCI)
		out = append(out, rec)
	}
	return out, rows.Err()
}
