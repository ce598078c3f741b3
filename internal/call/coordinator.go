package call

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/teamforge/realtime/internal/domain"
	"github.com/teamforge/realtime/internal/hub"
	"github.com/teamforge/realtime/internal/membership"
)

// Broadcaster is the slice of the hub the coordinator emits through.
type Broadcaster interface {
	Broadcast(room domain.ProjectID, payload any, exclude hub.Conn) hub.PublishResult
	SendTo(uid domain.UserID, payload any) hub.PublishResult
}

// UserDirectory resolves user ids to display data for notifications.
type UserDirectory interface {
	FindUser(ctx context.Context, userID domain.UserID) (*domain.User, error)
}

// Coordinator runs the call lifecycle. All checks happen before any
// registry mutation or broadcast, so a failed transition leaves no
// partial state.
type Coordinator struct {
	Registry *Registry
	Members  membership.Oracle
	Users    UserDirectory
	Send     Broadcaster
}

// StartCall creates a ringing session and announces it to the rest of
// the project's call room. The originating connection is excluded
// from the announcement; failures are returned to it alone.
func (c *Coordinator) StartCall(ctx context.Context, from hub.Conn, projectID domain.ProjectID, callerID domain.UserID, isVideo bool) error {
	ok, err := c.Members.IsMember(ctx, projectID, callerID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return membership.ErrNotMember
	}

	caller, err := c.Users.FindUser(ctx, callerID)
	if err != nil {
		return fmt.Errorf("resolve caller: %w", err)
	}

	sess, err := c.Registry.Start(projectID, callerID, domain.KindFromVideoFlag(isVideo))
	if err != nil {
		return err
	}

	c.Send.Broadcast(projectID, CallReceivedEvent{
		Type:       TypeCallReceived,
		ProjectID:  projectID,
		CallerID:   callerID,
		CallerName: caller.DisplayName,
		IsVideo:    sess.Kind == domain.CallVideo,
	}, from)
	return nil
}

// AcceptCall joins the callee to the session and tells the caller to
// begin offer creation.
func (c *Coordinator) AcceptCall(ctx context.Context, projectID domain.ProjectID, callerID, calleeID domain.UserID, isVideo bool) error {
	for _, uid := range []domain.UserID{callerID, calleeID} {
		ok, err := c.Members.IsMember(ctx, projectID, uid)
		if err != nil {
			return fmt.Errorf("membership check: %w", err)
		}
		if !ok {
			return membership.ErrNotMember
		}
	}

	if _, err := c.Registry.AddParticipant(projectID, calleeID); err != nil {
		return err
	}

	c.Send.SendTo(callerID, CallAcceptedEvent{
		Type:      TypeCallAccepted,
		ProjectID: projectID,
		CalleeID:  calleeID,
		IsVideo:   isVideo,
	})
	return nil
}

// RejectCall tells the caller directly that the callee declined. The
// session is left untouched: the caller may still be ringing other
// members and decides itself whether to keep waiting or hang up.
func (c *Coordinator) RejectCall(projectID domain.ProjectID, callerID, calleeID domain.UserID) {
	res := c.Send.SendTo(callerID, CallRejectedEvent{
		Type:      TypeCallRejected,
		ProjectID: projectID,
		CalleeID:  calleeID,
	})
	if res.SentTo == 0 {
		log.Warn().Str("module", "call").Str("project", string(projectID)).Str("caller", string(callerID)).Msg("reject notice reached no connection")
	}
}

// EndCall removes the session and announces call_ended to the room.
// Idempotent: with no session present it does nothing, and in
// particular does not re-broadcast.
func (c *Coordinator) EndCall(projectID domain.ProjectID, endedBy domain.UserID) {
	if _, ok := c.Registry.End(projectID); !ok {
		return
	}
	c.Send.Broadcast(projectID, CallEndedEvent{
		Type:      TypeCallEnded,
		ProjectID: projectID,
		EndedBy:   endedBy,
	}, nil)
}

// Disconnect reconciles the registry after a connection loss. The
// session is torn down only when the lost user was a participant;
// remaining room members learn why the call ended.
func (c *Coordinator) Disconnect(projectID domain.ProjectID, userID domain.UserID) {
	if _, ok := c.Registry.EndIfParticipant(projectID, userID); !ok {
		return
	}
	c.Send.Broadcast(projectID, CallEndedEvent{
		Type:      TypeCallEnded,
		ProjectID: projectID,
		EndedBy:   userID,
		Reason:    ReasonDisconnected,
	}, nil)
}

// RelayOffer forwards an SDP offer to the callee's connections. The
// payload is not inspected; delivery is best-effort.
func (c *Coordinator) RelayOffer(projectID domain.ProjectID, sdp string, callerID, calleeID domain.UserID) {
	c.Send.SendTo(calleeID, SessionDescriptionEvent{
		Type:      TypeOffer,
		ProjectID: projectID,
		SDP:       sdp,
		CallerID:  callerID,
		CalleeID:  calleeID,
	})
}

// RelayAnswer forwards an SDP answer back to the caller.
func (c *Coordinator) RelayAnswer(projectID domain.ProjectID, sdp string, callerID, calleeID domain.UserID) {
	c.Send.SendTo(callerID, SessionDescriptionEvent{
		Type:      TypeAnswer,
		ProjectID: projectID,
		SDP:       sdp,
		CallerID:  callerID,
		CalleeID:  calleeID,
	})
}

// RelayCandidate fans an ICE candidate out to the rest of the call
// room, skipping the sender's own connection.
func (c *Coordinator) RelayCandidate(from hub.Conn, projectID domain.ProjectID, candidate webrtc.ICECandidateInit, userID domain.UserID) {
	c.Send.Broadcast(projectID, ICECandidateEvent{
		Type:      TypeICECandidate,
		ProjectID: projectID,
		Candidate: candidate,
		UserID:    userID,
	}, from)
}
