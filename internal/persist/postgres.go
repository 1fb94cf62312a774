package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/mill-arena/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS mill_players (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS mill_matches (
	match_id      TEXT PRIMARY KEY,
	white_id      TEXT NOT NULL,
	black_id      TEXT NOT NULL,
	winner        TEXT NOT NULL,
	reason        TEXT NOT NULL,
	time_control  TEXT NOT NULL,
	rating_class  TEXT NOT NULL,
	rated         BOOLEAN NOT NULL,
	tournament_id TEXT,
	moves         JSONB NOT NULL,
	white_delta   INTEGER NOT NULL,
	black_delta   INTEGER NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS mill_matches_white_idx ON mill_matches (white_id, ended_at DESC);
CREATE INDEX IF NOT EXISTS mill_matches_black_idx ON mill_matches (black_id, ended_at DESC);
CREATE TABLE IF NOT EXISTS mill_bans (
	player_id  TEXT PRIMARY KEY,
	banned_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS mill_tournament_archive (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	record      JSONB NOT NULL
);`

// Postgres is the lib/pq backed Store.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
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
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) LoadPlayer(ctx context.Context, id string) (*domain.PlayerRecord, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT record FROM mill_players WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load player %s: %w", id, err)
	}
	var rec domain.PlayerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", id, err)
	}
	rec.Normalize()
	return &rec, nil
}

func (p *Postgres) SavePlayer(ctx context.Context, rec *domain.PlayerRecord) error {
	return upsertPlayer(ctx, p.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertPlayer(ctx context.Context, ex execer, rec *domain.PlayerRecord) error {
	if rec == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	const q = `INSERT INTO mill_players (id, name, record, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name,
			record=EXCLUDED.record,
			updated_at=EXCLUDED.updated_at`
	_, err = ex.ExecContext(ctx, q, rec.ID, rec.Name, string(raw), rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (p *Postgres) UpdatePlayer(ctx context.Context, id string, fn func(rec *domain.PlayerRecord) error) error {
	return p.UpdatePlayers(ctx, []string{id}, single(fn))
}

// UpdatePlayers holds a row lock on every id for the whole transaction. Rows
// are locked in id order so two games sharing a player cannot deadlock.
func (p *Postgres) UpdatePlayers(ctx context.Context, ids []string, fn func(recs []*domain.PlayerRecord) error) error {
	byID := make(map[string]*domain.PlayerRecord, len(ids))
	order := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if _, seen := byID[id]; !seen {
			byID[id] = nil
			order = append(order, id)
		}
	}
	sort.Strings(order)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin player update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range order {
		rec, err := lockPlayer(ctx, tx, id)
		if err != nil {
			return err
		}
		byID[id] = rec
	}
	recs := make([]*domain.PlayerRecord, len(ids))
	for i, raw := range ids {
		recs[i] = byID[strings.TrimSpace(raw)]
	}
	if err := fn(recs); err != nil {
		return err
	}
	for _, id := range order {
		if err := upsertPlayer(ctx, tx, byID[id]); err != nil {
			return fmt.Errorf("save player %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// lockPlayer seeds a default row for an unknown id, then locks and reads it.
// A concurrent seed of the same id waits on the first one's commit.
func lockPlayer(ctx context.Context, tx *sql.Tx, id string) (*domain.PlayerRecord, error) {
	seed, err := json.Marshal(domain.NewPlayer(id, id, time.Time{}))
	if err != nil {
		return nil, fmt.Errorf("marshal player: %w", err)
	}
	const insert = `INSERT INTO mill_players (id, name, record, created_at, updated_at)
		VALUES ($1, $1, $2::jsonb, now(), now())
		ON CONFLICT (id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insert, id, string(seed)); err != nil {
		return nil, fmt.Errorf("seed player %s: %w", id, err)
	}
	var raw []byte
	if err := tx.QueryRowContext(ctx, `SELECT record FROM mill_players WHERE id = $1 FOR UPDATE`, id).Scan(&raw); err != nil {
		return nil, fmt.Errorf("lock player %s: %w", id, err)
	}
	var rec domain.PlayerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode player %s: %w", id, err)
	}
	rec.Normalize()
	return &rec, nil
}

func (p *Postgres) TopPlayers(ctx context.Context, class domain.RatingClass, limit int, exclude []string) ([]*domain.PlayerRecord, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if exclude == nil {
		exclude = []string{}
	}
	const q = `SELECT record FROM mill_players
		WHERE id <> ALL($2)
		ORDER BY COALESCE((record->'stats'->$1->>'rating')::int, 0) DESC,
			COALESCE((record->'stats'->$1->>'games')::int, 0) DESC,
			id ASC
		LIMIT $3`
	rows, err := p.db.QueryContext(ctx, q, string(class), pq.Array(exclude), limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s: %w", class, err)
	}
	defer rows.Close()

	var out []*domain.PlayerRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec domain.PlayerRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode player: %w", err)
		}
		rec.Normalize()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (p *Postgres) LoadBans(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT player_id FROM mill_bans ORDER BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("load bans: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) SetBanned(ctx context.Context, player string, banned bool) error {
	if !banned {
		_, err := p.db.ExecContext(ctx, `DELETE FROM mill_bans WHERE player_id = $1`, player)
		return err
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO mill_bans (player_id, banned_at) VALUES ($1, now())
		ON CONFLICT (player_id) DO NOTHING`, player)
	return err
}

func (p *Postgres) SaveFinishedMatch(ctx context.Context, m *domain.MatchSummary) error {
	if m == nil {
		return nil
	}
	moves, err := json.Marshal(m.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	duration := m.EndedAt.Sub(m.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	const q = `INSERT INTO mill_matches (
			match_id, white_id, black_id, winner, reason, time_control, rating_class,
			rated, tournament_id, moves, white_delta, black_delta, started_at, ended_at, duration_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13,$14,$15)
		ON CONFLICT (match_id) DO UPDATE SET
			winner=EXCLUDED.winner,
			reason=EXCLUDED.reason,
			moves=EXCLUDED.moves,
			white_delta=EXCLUDED.white_delta,
			black_delta=EXCLUDED.black_delta,
			ended_at=EXCLUDED.ended_at,
			duration_ms=EXCLUDED.duration_ms`
	_, err = p.db.ExecContext(ctx, q,
		m.ID, m.White, m.Black, m.Winner, m.Reason, m.TimeControl, string(m.Class),
		m.Rated, nullString(m.TournamentID), string(moves), m.WhiteDelta, m.BlackDelta,
		m.StartedAt, m.EndedAt, duration,
	)
	return err
}

func (p *Postgres) RecentMatches(ctx context.Context, player string, limit int) ([]*domain.MatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT match_id, white_id, black_id, winner, reason, time_control, rating_class,
			rated, COALESCE(tournament_id, ''), moves, white_delta, black_delta, started_at, ended_at
		FROM mill_matches
		WHERE white_id = $1 OR black_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, player, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.MatchSummary
	for rows.Next() {
		var (
			m     domain.MatchSummary
			class string
			moves []byte
		)
		if err := rows.Scan(&m.ID, &m.White, &m.Black, &m.Winner, &m.Reason, &m.TimeControl, &class,
			&m.Rated, &m.TournamentID, &moves, &m.WhiteDelta, &m.BlackDelta, &m.StartedAt, &m.EndedAt); err != nil {
			return nil, err
		}
		m.Class = domain.RatingClass(class)
		if len(moves) > 0 {
			if err := json.Unmarshal(moves, &m.Moves); err != nil {
				return nil, fmt.Errorf("decode moves %s: %w", m.ID, err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (p *Postgres) LoadArchivedTournament(ctx context.Context, id string) (*domain.ArchivedTournament, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT record FROM mill_tournament_archive WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load archive %s: %w", id, err)
	}
	var t domain.ArchivedTournament
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", id, err)
	}
	return &t, nil
}

func (p *Postgres) SaveArchivedTournament(ctx context.Context, t *domain.ArchivedTournament) error {
	if t == nil {
		return nil
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	const q = `INSERT INTO mill_tournament_archive (id, type, finished_at, record)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (id) DO UPDATE SET record=EXCLUDED.record, finished_at=EXCLUDED.finished_at`
	_, err = p.db.ExecContext(ctx, q, t.ID, t.Type, t.FinishedAt, string(raw))
	return err
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
