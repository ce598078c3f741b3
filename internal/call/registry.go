// Package call owns the call-session registry and the coordinator
// that drives the call lifecycle and signaling relay.
package call

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/teamforge/realtime/internal/domain"
)

var (
	// ErrCallInProgress means a session already exists for the
	// project. A second start never queues or replaces.
	ErrCallInProgress = errors.New("call already in progress")

	// ErrNoActiveCall means no session exists for the project.
	ErrNoActiveCall = errors.New("no active call")
)

// Registry is the authoritative map from project id to its active
// call session. At most one session per project; all mutations go
// through the registry under one lock, so two racing starts yield
// exactly one winner.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ProjectID]*domain.CallSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ProjectID]*domain.CallSession)}
}

// Start creates a ringing session for the project with the caller as
// sole participant. ErrCallInProgress if one already exists; the
// existing session is left unmodified.
func (r *Registry) Start(projectID domain.ProjectID, callerID domain.UserID, kind domain.CallKind) (*domain.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[projectID]; ok {
		return nil, ErrCallInProgress
	}
	sess := &domain.CallSession{
		ProjectID:    projectID,
		CallerID:     callerID,
		Kind:         kind,
		Status:       domain.CallRinging,
		Participants: []domain.UserID{callerID},
	}
	r.sessions[projectID] = sess
	log.Info().Str("module", "call.registry").Str("project", string(projectID)).Str("caller", string(callerID)).Str("kind", string(kind)).Msg("call started")
	return snapshot(sess), nil
}

// AddParticipant joins a user to the project's session and marks it
// active. ErrNoActiveCall if no session exists. Joining twice is a
// no-op for the participant set.
func (r *Registry) AddParticipant(projectID domain.ProjectID, userID domain.UserID) (*domain.CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[projectID]
	if !ok {
		return nil, ErrNoActiveCall
	}
	if !sess.HasParticipant(userID) {
		sess.Participants = append(sess.Participants, userID)
	}
	sess.Status = domain.CallActive
	log.Info().Str("module", "call.registry").Str("project", string(projectID)).Str("user", string(userID)).Msg("participant joined")
	return snapshot(sess), nil
}

// Get returns a snapshot of the project's session, if any.
func (r *Registry) Get(projectID domain.ProjectID) (*domain.CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[projectID]
	if !ok {
		return nil, false
	}
	return snapshot(sess), true
}

// End removes the project's session. Reports whether one existed, so
// callers only announce call_ended once.
func (r *Registry) End(projectID domain.ProjectID) (*domain.CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[projectID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, projectID)
	log.Info().Str("module", "call.registry").Str("project", string(projectID)).Msg("call ended")
	return snapshot(sess), true
}

// EndIfParticipant removes the project's session only when userID is
// one of its participants. Used for disconnect reconciliation.
func (r *Registry) EndIfParticipant(projectID domain.ProjectID, userID domain.UserID) (*domain.CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[projectID]
	if !ok || !sess.HasParticipant(userID) {
		return nil, false
	}
	delete(r.sessions, projectID)
	log.Info().Str("module", "call.registry").Str("project", string(projectID)).Str("user", string(userID)).Msg("call ended by participant loss")
	return snapshot(sess), true
}

// snapshot copies the session so callers never alias registry state.
func snapshot(sess *domain.CallSession) *domain.CallSession {
	cp := *sess
	cp.Participants = append([]domain.UserID(nil), sess.Participants...)
	return &cp
}
