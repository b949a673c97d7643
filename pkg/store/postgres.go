package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/signaling"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_requests (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL,
	from_user_id     TEXT NOT NULL,
	from_device_id   TEXT NOT NULL,
	from_device_name TEXT NOT NULL DEFAULT '',
	to_user_id       TEXT NOT NULL,
	to_device_id     TEXT NOT NULL,
	to_device_name   TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS session_requests_to_user ON session_requests (to_user_id, status);
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	request_id       TEXT NOT NULL,
	from_user_id     TEXT NOT NULL,
	from_device_id   TEXT NOT NULL,
	from_device_name TEXT NOT NULL DEFAULT '',
	to_user_id       TEXT NOT NULL,
	to_device_id     TEXT NOT NULL,
	to_device_name   TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ,
	reason           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sessions_users ON sessions (from_user_id, to_user_id, status);
`

// Postgres is the durable history backend on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgres(ctx context.Context, dsn string, log *logger.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store schema: %w", err)
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) RecordRequest(ctx context.Context, r signaling.Request) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_requests (
			id, session_id,
			from_user_id, from_device_id, from_device_name,
			to_user_id, to_device_id, to_device_name,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, r.Id, r.SessionId,
		r.From.UserId, r.From.DeviceId, r.From.DeviceName,
		r.To.UserId, r.To.DeviceId, r.To.DeviceName,
		r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *Postgres) RecordSession(ctx context.Context, s signaling.Session) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (
			id, request_id,
			from_user_id, from_device_id, from_device_name,
			to_user_id, to_device_id, to_device_name,
			status, started_at, ended_at, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status   = EXCLUDED.status,
			-- the end timestamp never changes once set
			ended_at = COALESCE(sessions.ended_at, EXCLUDED.ended_at),
			reason   = CASE WHEN sessions.ended_at IS NULL THEN EXCLUDED.reason ELSE sessions.reason END
	`, s.Id, s.RequestId,
		s.From.UserId, s.From.DeviceId, s.From.DeviceName,
		s.To.UserId, s.To.DeviceId, s.To.DeviceName,
		s.Status, s.StartedAt, s.EndedAt, s.Reason)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

const sessionColumns = `
	id, request_id,
	from_user_id, from_device_id, from_device_name,
	to_user_id, to_device_id, to_device_name,
	status, started_at, ended_at, reason`

func (p *Postgres) ActiveSessionsFor(ctx context.Context, userId string) ([]signaling.Session, error) {
	return p.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE (from_user_id = $1 OR to_user_id = $1) AND status <> 'ended'
		ORDER BY started_at DESC
	`, userId)
}

func (p *Postgres) EndedSessionsFor(ctx context.Context, userId string, limit int) ([]signaling.Session, error) {
	return p.querySessions(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE (from_user_id = $1 OR to_user_id = $1) AND status = 'ended'
		ORDER BY started_at DESC
		LIMIT $2
	`, userId, limit)
}

func (p *Postgres) PendingRequestsFor(ctx context.Context, userId string) ([]signaling.Request, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id,
			from_user_id, from_device_id, from_device_name,
			to_user_id, to_device_id, to_device_name,
			status, created_at, updated_at
		FROM session_requests
		WHERE (from_user_id = $1 OR to_user_id = $1) AND status = 'pending'
		ORDER BY created_at DESC
	`, userId)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []signaling.Request
	for rows.Next() {
		var r signaling.Request
		if err := rows.Scan(&r.Id, &r.SessionId,
			&r.From.UserId, &r.From.DeviceId, &r.From.DeviceName,
			&r.To.UserId, &r.To.DeviceId, &r.To.DeviceName,
			&r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (p *Postgres) querySessions(ctx context.Context, query string, args ...any) ([]signaling.Session, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []signaling.Session
	for rows.Next() {
		var s signaling.Session
		if err := rows.Scan(&s.Id, &s.RequestId,
			&s.From.UserId, &s.From.DeviceId, &s.From.DeviceName,
			&s.To.UserId, &s.To.DeviceId, &s.To.DeviceName,
			&s.Status, &s.StartedAt, &s.EndedAt, &s.Reason); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}
