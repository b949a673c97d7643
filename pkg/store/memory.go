package store

import (
	"context"
	"sort"

	"github.com/oceanpulse/livelink/pkg/com"
	"github.com/oceanpulse/livelink/pkg/signaling"
)

// Memory keeps session history in process memory. Used when no
// Postgres DSN is configured, and throughout the tests.
type Memory struct {
	requests com.Map[string, signaling.Request]
	sessions com.Map[string, signaling.Session]
}

func NewMemory() *Memory {
	return &Memory{
		requests: com.NewMap[string, signaling.Request](),
		sessions: com.NewMap[string, signaling.Session](),
	}
}

func (m *Memory) RecordRequest(_ context.Context, r signaling.Request) error {
	m.requests.Put(r.Id, r)
	return nil
}

func (m *Memory) RecordSession(_ context.Context, s signaling.Session) error {
	m.sessions.Put(s.Id, s)
	return nil
}

func (m *Memory) ActiveSessionsFor(_ context.Context, userId string) ([]signaling.Session, error) {
	return m.sessionsFor(userId, true, 0), nil
}

func (m *Memory) EndedSessionsFor(_ context.Context, userId string, limit int) ([]signaling.Session, error) {
	return m.sessionsFor(userId, false, limit), nil
}

func (m *Memory) PendingRequestsFor(_ context.Context, userId string) ([]signaling.Request, error) {
	var out []signaling.Request
	m.requests.ForEach(func(r signaling.Request) {
		if r.Status == signaling.RequestPending &&
			(r.From.UserId == userId || r.To.UserId == userId) {
			out = append(out, r)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) sessionsFor(userId string, live bool, limit int) []signaling.Session {
	var out []signaling.Session
	m.sessions.ForEach(func(s signaling.Session) {
		if !s.Has(userId) {
			return
		}
		if live == (s.Status == signaling.SessionEnded) {
			return
		}
		out = append(out, s)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
