package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/oceanpulse/livelink/pkg/com"
	"github.com/oceanpulse/livelink/pkg/logger"
)

// pairKey identifies an unordered participant pair. Participants are
// (user, device) tuples, so one user can hold sessions between several
// of their own devices at once.
type pairKey struct{ lo, hi string }

func newPairKey(a, b Participant) pairKey {
	x, y := a.UserId+"/"+a.DeviceId, b.UserId+"/"+b.DeviceId
	if x > y {
		x, y = y, x
	}
	return pairKey{lo: x, hi: y}
}

// Manager owns the request/session state machine. All transitions go
// through it; history writes are best-effort and never block a
// transition.
type Manager struct {
	mu       sync.Mutex
	requests map[string]*Request
	sessions map[string]*Session
	// one live session per unordered participant pair
	pairs map[pairKey]string

	requestTimeout time.Duration
	queryTimeout   time.Duration
	history        History
	log            *logger.Logger
	now            func() time.Time
}

func NewManager(requestTimeout, queryTimeout time.Duration, history History, log *logger.Logger) *Manager {
	return &Manager{
		requests:       make(map[string]*Request, 16),
		sessions:       make(map[string]*Session, 16),
		pairs:          make(map[pairKey]string, 16),
		requestTimeout: requestTimeout,
		queryTimeout:   queryTimeout,
		history:        history,
		log:            log,
		now:            time.Now,
	}
}

// CreateRequest starts a pairing negotiation towards an online device.
// A still-pending request for the same (requester, target device) pair
// is returned as-is instead of stacking duplicates.
func (m *Manager) CreateRequest(from Participant, target Participant) (rq *Request, created bool) {
	m.mu.Lock()
	for _, prev := range m.requests {
		if prev.Status == RequestPending &&
			prev.From.UserId == from.UserId && prev.To.DeviceId == target.DeviceId {
			m.mu.Unlock()
			return prev, false
		}
	}
	now := m.now()
	rq = &Request{
		Id:        com.NewUid().String(),
		SessionId: com.NewUid().String(),
		From:      from,
		To:        target,
		Status:    RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.requests[rq.Id] = rq
	m.mu.Unlock()
	m.persistRequest(*rq)
	return rq, true
}

// Respond settles a pending request. Only the target user may answer.
// Acceptance creates the session in connecting state under the
// pre-allocated session id.
func (m *Manager) Respond(userId, requestId string, accepted bool) (*Request, *Session, error) {
	m.mu.Lock()
	rq, ok := m.requests[requestId]
	if !ok {
		// older clients echo the session id back instead
		for _, r := range m.requests {
			if r.SessionId == requestId {
				rq = r
				break
			}
		}
		if rq == nil {
			m.mu.Unlock()
			return nil, nil, ErrRequestNotFound
		}
	}
	if rq.To.UserId != userId {
		m.mu.Unlock()
		return nil, nil, ErrNotAuthorized
	}
	if rq.Status != RequestPending {
		m.mu.Unlock()
		return nil, nil, ErrRequestNotFound
	}
	now := m.now()
	rq.UpdatedAt = now
	if !accepted {
		rq.Status = RequestRejected
		out := *rq
		m.mu.Unlock()
		m.persistRequest(out)
		return &out, nil, nil
	}
	key := newPairKey(rq.From, rq.To)
	if sid, ok := m.pairs[key]; ok {
		if s, ok := m.sessions[sid]; ok && s.Live() {
			m.mu.Unlock()
			return nil, nil, ErrSessionExists
		}
	}
	rq.Status = RequestAccepted
	s := &Session{
		Id:        rq.SessionId,
		RequestId: rq.Id,
		From:      rq.From,
		To:        rq.To,
		Status:    SessionConnecting,
		StartedAt: now,
	}
	m.sessions[s.Id] = s
	m.pairs[key] = s.Id
	outRq, outS := *rq, *s
	m.mu.Unlock()
	m.persistRequest(outRq)
	m.persistSession(outS)
	return &outRq, &outS, nil
}

// MarkActive flips a connecting session to active once negotiation
// completes. Idempotent.
func (m *Manager) MarkActive(sessionId string) (*Session, bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionId]
	if !ok {
		m.mu.Unlock()
		return nil, false, ErrSessionNotFound
	}
	if s.Status != SessionConnecting {
		out := *s
		m.mu.Unlock()
		return &out, false, nil
	}
	s.Status = SessionActive
	out := *s
	m.mu.Unlock()
	m.persistSession(out)
	return &out, true, nil
}

// End terminates the session. Calling it on an already-ended session is
// a no-op: the end timestamp, once set, never changes.
func (m *Manager) End(sessionId, reason string) (*Session, bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionId]
	if !ok {
		m.mu.Unlock()
		return nil, false, ErrSessionNotFound
	}
	if s.Status == SessionEnded {
		out := *s
		m.mu.Unlock()
		return &out, false, nil
	}
	now := m.now()
	s.Status = SessionEnded
	s.EndedAt = &now
	s.Reason = reason
	key := newPairKey(s.From, s.To)
	if m.pairs[key] == s.Id {
		delete(m.pairs, key)
	}
	out := *s
	m.mu.Unlock()
	m.persistSession(out)
	return &out, true, nil
}

func (m *Manager) Session(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		out := *s
		return &out, nil
	}
	return nil, ErrSessionNotFound
}

// LiveSessionsWith lists connecting and active sessions a device
// participates in, used on connection loss.
func (m *Manager) LiveSessionsWith(deviceId string) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.Live() && (s.From.DeviceId == deviceId || s.To.DeviceId == deviceId) {
			out = append(out, *s)
		}
	}
	return out
}

// LiveCount reports the number of live sessions.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Live() {
			n++
		}
	}
	return n
}

// ExpireStale flips pending requests older than the timeout to expired
// and returns them for notification, each exactly once.
func (m *Manager) ExpireStale() []Request {
	now := m.now()
	cutoff := now.Add(-m.requestTimeout)
	m.mu.Lock()
	var expired []Request
	for _, rq := range m.requests {
		if rq.Status == RequestPending && rq.CreatedAt.Before(cutoff) {
			rq.Status = RequestExpired
			rq.UpdatedAt = now
			expired = append(expired, *rq)
		}
	}
	m.mu.Unlock()
	for _, rq := range expired {
		m.persistRequest(rq)
	}
	return expired
}

func (m *Manager) persistRequest(rq Request) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.queryTimeout)
	defer cancel()
	if err := m.history.RecordRequest(ctx, rq); err != nil {
		m.log.Warn().Err(err).Str("rid", rq.Id).Msg("history write skipped")
	}
}

func (m *Manager) persistSession(s Session) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.queryTimeout)
	defer cancel()
	if err := m.history.RecordSession(ctx, s); err != nil {
		m.log.Warn().Err(err).Str("sid", s.Id).Msg("history write skipped")
	}
}
