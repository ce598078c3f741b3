package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/teamforge/realtime/internal/domain"
)

// Wire event type tags for the calls channel.
const (
	TypeCallReceived = "call_received"
	TypeCallAccepted = "call_accepted"
	TypeCallRejected = "call_rejected"
	TypeCallEnded    = "call_ended"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeCallError    = "call_error"
)

const ReasonDisconnected = "disconnected"

type CallReceivedEvent struct {
	Type       string           `json:"type"`
	ProjectID  domain.ProjectID `json:"projectId"`
	CallerID   domain.UserID    `json:"callerId"`
	CallerName string           `json:"callerName"`
	IsVideo    bool             `json:"isVideo"`
}

type CallAcceptedEvent struct {
	Type      string           `json:"type"`
	ProjectID domain.ProjectID `json:"projectId"`
	CalleeID  domain.UserID    `json:"calleeId"`
	IsVideo   bool             `json:"isVideo"`
}

type CallRejectedEvent struct {
	Type      string           `json:"type"`
	ProjectID domain.ProjectID `json:"projectId"`
	CalleeID  domain.UserID    `json:"calleeId"`
}

type CallEndedEvent struct {
	Type      string           `json:"type"`
	ProjectID domain.ProjectID `json:"projectId"`
	EndedBy   domain.UserID    `json:"endedBy"`
	Reason    string           `json:"reason,omitempty"`
}

// SessionDescriptionEvent carries an SDP offer or answer between the
// two negotiating peers. The payload is relayed unmodified.
type SessionDescriptionEvent struct {
	Type      string           `json:"type"`
	ProjectID domain.ProjectID `json:"projectId"`
	SDP       string           `json:"sdp"`
	CallerID  domain.UserID    `json:"callerId"`
	CalleeID  domain.UserID    `json:"calleeId"`
}

// ICECandidateEvent carries one ICE candidate to the other peers in
// the call room. Candidate contents are opaque to this layer.
type ICECandidateEvent struct {
	Type      string                  `json:"type"`
	ProjectID domain.ProjectID        `json:"projectId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	UserID    domain.UserID           `json:"userId"`
}

type CallErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
