// Package rest exposes the session history and request/respond/end
// operations to the dashboard and reporting collaborators.
package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/oceanpulse/livelink/pkg/auth"
	"github.com/oceanpulse/livelink/pkg/config"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/signaling"
	"github.com/oceanpulse/livelink/pkg/store"
)

type ctxKey int

const userKey ctxKey = iota

type Rest struct {
	hub        *signaling.Hub
	history    signaling.History
	verifier   *auth.Verifier
	endedLimit int
	log        *logger.Logger
}

func New(hub *signaling.Hub, history signaling.History, verifier *auth.Verifier, conf config.Store, log *logger.Logger) *Rest {
	limit := conf.EndedLimit
	if limit <= 0 {
		limit = 50
	}
	return &Rest{hub: hub, history: history, verifier: verifier, endedLimit: limit, log: log}
}

// Routes mounts the REST surface and the websocket endpoint on a router.
func (s *Rest) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	r.HandleFunc("/api/v1/session/ws", s.hub.HandleUserConnection).Methods("GET")
	// the SPA appends the user id to the path; identity still comes from
	// the token
	r.HandleFunc("/api/v1/session/ws/{user}", s.hub.HandleUserConnection).Methods("GET")

	api := r.PathPrefix("/api/v1/session").Subrouter()
	api.Use(s.withAuth)
	api.HandleFunc("/active", s.getActive).Methods("GET")
	api.HandleFunc("/devices", s.getDevices).Methods("GET")
	api.HandleFunc("/request", s.postRequest).Methods("POST")
	api.HandleFunc("/respond", s.postRespond).Methods("POST")
	api.HandleFunc("/{id}/end", s.postEnd).Methods("POST")
	return r
}

func (s *Rest) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, err := s.verifier.Verify(auth.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userId)))
	})
}

func (s *Rest) getActive(w http.ResponseWriter, r *http.Request) {
	userId := userFrom(r)
	pending, err := s.history.PendingRequestsFor(r.Context(), userId)
	if err != nil {
		s.fail(w, err)
		return
	}
	active, err := s.history.ActiveSessionsFor(r.Context(), userId)
	if err != nil {
		s.fail(w, err)
		return
	}
	ended, err := s.history.EndedSessionsFor(r.Context(), userId, s.endedLimit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"pending_requests": orEmpty(pending),
		"active_sessions":  orEmpty(active),
		"ended_sessions":   orEmpty(ended),
	})
}

func (s *Rest) getDevices(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"devices": s.hub.Devices(userFrom(r))})
}

func (s *Rest) postRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceId     string `json:"device_id"`
		TargetUserId string `json:"target_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, signaling.ErrInvalidMessage)
		return
	}
	rq, err := s.hub.CreateRequest(userFrom(r), "", body.DeviceId, body.TargetUserId)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, rq)
}

func (s *Rest) postRespond(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestId string `json:"request_id"`
		SessionId string `json:"session_id"`
		Accepted  bool   `json:"accepted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, signaling.ErrInvalidMessage)
		return
	}
	id := body.RequestId
	if id == "" {
		id = body.SessionId
	}
	rq, sess, err := s.hub.Respond(userFrom(r), id, body.Accepted)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := map[string]any{"request": rq}
	if sess != nil {
		out["session"] = sess
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Rest) postEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := s.hub.EndSession(userFrom(r), "", mux.Vars(r)["id"], signaling.ReasonEndedByPeer)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, sess)
}

func (s *Rest) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode")
	}
}

// fail maps every signaling error to exactly one status code.
func (s *Rest) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, signaling.ErrInvalidMessage):
		status = http.StatusBadRequest
	case errors.Is(err, signaling.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, signaling.ErrRequestNotFound), errors.Is(err, signaling.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, signaling.ErrDeviceOffline), errors.Is(err, signaling.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": signaling.ErrorCode(err),
	})
}

func withUser(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userKey, userId)
}

func userFrom(r *http.Request) string {
	if v, ok := r.Context().Value(userKey).(string); ok {
		return v
	}
	return ""
}

func orEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
