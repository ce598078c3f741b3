package domain

import "errors"

var ErrUnknownCallKind = errors.New("unknown call kind")

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

// KindFromVideoFlag maps the wire-level isVideo flag to a CallKind.
func KindFromVideoFlag(isVideo bool) CallKind {
	if isVideo {
		return CallVideo
	}
	return CallAudio
}

type CallStatus string

const (
	CallRinging CallStatus = "ringing"
	CallActive  CallStatus = "active"
)

// CallSession describes one project's in-progress call.
// At most one session exists per project at any time; the call
// registry is the only writer.
type CallSession struct {
	ProjectID    ProjectID  `json:"projectId"`
	CallerID     UserID     `json:"callerId"`
	Kind         CallKind   `json:"kind"`
	Status       CallStatus `json:"status"`
	Participants []UserID   `json:"participants"`
}

// HasParticipant reports whether uid has joined the call.
// Participants are user ids, not connection ids, so a user keeps
// their seat across reconnects.
func (s *CallSession) HasParticipant(uid UserID) bool {
	for _, p := range s.Participants {
		if p == uid {
			return true
		}
	}
	return false
}
