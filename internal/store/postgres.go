package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/park285/typing-arena/internal/domain"
)

const uniqueViolation = pq.ErrorCode("23505")

const schema = `
CREATE TABLE IF NOT EXISTS arena_competitions (
	id           TEXT PRIMARY KEY,
	code         TEXT NOT NULL UNIQUE,
	organizer_id TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	doc          JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS arena_competitions_status_idx ON arena_competitions (status);
CREATE TABLE IF NOT EXISTS arena_participants (
	id             TEXT PRIMARY KEY,
	competition_id TEXT NOT NULL REFERENCES arena_competitions (id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	connection_id  TEXT NOT NULL DEFAULT '',
	joined_at      TIMESTAMPTZ NOT NULL,
	doc            JSONB NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (competition_id, name)
);
CREATE INDEX IF NOT EXISTS arena_participants_competition_idx ON arena_participants (competition_id, joined_at);
`

type postgres struct {
	db *sql.DB
}

// Open connects to Postgres with the pool settings used across the service.
func Open(databaseURL string) (*sql.DB, error) {
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
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgres(db *sql.DB) Gateway {
	return &postgres{db: db}
}

// EnsureSchema creates the document tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure arena schema: %w", err)
	}
	return nil
}

func (r *postgres) CreateCompetition(ctx context.Context, c *domain.Competition) error {
	if c == nil {
		return fmt.Errorf("nil competition payload")
	}
	doc := c.Clone()
	doc.Code = domain.NormalizeCode(doc.Code)
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal competition: %w", err)
	}
	const q = `
		INSERT INTO arena_competitions (id, code, organizer_id, status, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, NOW())`
	_, err = r.db.ExecContext(ctx, q, doc.ID, doc.Code, doc.OrganizerID, string(doc.Status), raw, doc.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("insert competition: %w", err)
	}
	return nil
}

func (r *postgres) FindCompetitionByCode(ctx context.Context, code string) (*domain.Competition, error) {
	const q = `SELECT doc FROM arena_competitions WHERE code = $1`
	return r.scanCompetition(r.db.QueryRowContext(ctx, q, domain.NormalizeCode(code)))
}

func (r *postgres) FindCompetitionByID(ctx context.Context, id string) (*domain.Competition, error) {
	const q = `SELECT doc FROM arena_competitions WHERE id = $1`
	return r.scanCompetition(r.db.QueryRowContext(ctx, q, strings.TrimSpace(id)))
}

func (r *postgres) UpdateCompetition(ctx context.Context, c *domain.Competition) error {
	if c == nil {
		return fmt.Errorf("nil competition payload")
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal competition: %w", err)
	}
	const q = `
		UPDATE arena_competitions
		SET status = $2, doc = $3::jsonb, updated_at = NOW()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, c.ID, string(c.Status), raw)
	if err != nil {
		return fmt.Errorf("update competition: %w", err)
	}
	return requireRow(res)
}

func (r *postgres) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if p == nil {
		return fmt.Errorf("nil participant payload")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	const q = `
		INSERT INTO arena_participants (id, competition_id, name, connection_id, joined_at, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, NOW())`
	_, err = r.db.ExecContext(ctx, q, p.ID, p.CompetitionID, p.Name, p.ConnectionID, p.JoinedAt, raw)
	if isUniqueViolation(err) {
		return ErrDuplicateParticipant
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *postgres) FindParticipant(ctx context.Context, competitionID, name string) (*domain.Participant, error) {
	const q = `SELECT doc FROM arena_participants WHERE competition_id = $1 AND name = $2`
	var raw []byte
	err := r.db.QueryRowContext(ctx, q, competitionID, strings.TrimSpace(name)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select participant: %w", err)
	}
	return decodeParticipant(raw)
}

func (r *postgres) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	if p == nil {
		return fmt.Errorf("nil participant payload")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	const q = `
		UPDATE arena_participants
		SET connection_id = $2, doc = $3::jsonb, updated_at = NOW()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, p.ID, p.ConnectionID, raw)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return requireRow(res)
}

func (r *postgres) DeleteParticipant(ctx context.Context, competitionID, name, connectionID string) (bool, error) {
	const q = `
		DELETE FROM arena_participants
		WHERE competition_id = $1 AND name = $2 AND connection_id = $3`
	res, err := r.db.ExecContext(ctx, q, competitionID, strings.TrimSpace(name), connectionID)
	if err != nil {
		return false, fmt.Errorf("delete participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete participant rows: %w", err)
	}
	return n > 0, nil
}

func (r *postgres) ListParticipants(ctx context.Context, competitionID string) ([]*domain.Participant, error) {
	const q = `
		SELECT doc FROM arena_participants
		WHERE competition_id = $1
		ORDER BY joined_at ASC, name ASC`
	rows, err := r.db.QueryContext(ctx, q, competitionID)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Participant, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p, err := decodeParticipant(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}

func (r *postgres) scanCompetition(row *sql.Row) (*domain.Competition, error) {
	var raw []byte
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select competition: %w", err)
	}
	var c domain.Competition
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("unmarshal competition: %w", err)
	}
	return &c, nil
}

func decodeParticipant(raw []byte) (*domain.Participant, error) {
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal participant: %w", err)
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
