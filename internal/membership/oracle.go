// Package membership answers "is user U part of project P".
// Every authorization check in the realtime layer goes through the
// Oracle, never through ad-hoc member-list scans in handlers.
package membership

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/teamforge/realtime/internal/domain"
)

// ErrNotMember is the authorization failure surfaced (as an error
// event) to the initiating connection only, never broadcast.
var ErrNotMember = errors.New("user is not a member of the project")

type Oracle interface {
	IsMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) (bool, error)
}

// ProjectMemberships is the slice of the record store the oracle needs.
type ProjectMemberships interface {
	IsProjectMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) (bool, error)
}

type storeOracle struct {
	store ProjectMemberships
}

func NewOracle(store ProjectMemberships) Oracle {
	return &storeOracle{store: store}
}

func (o *storeOracle) IsMember(ctx context.Context, projectID domain.ProjectID, userID domain.UserID) (bool, error) {
	ok, err := o.store.IsProjectMember(ctx, projectID, userID)
	if err != nil {
		log.Error().Err(err).Str("module", "membership").Str("project", string(projectID)).Str("user", string(userID)).Msg("membership lookup failed")
		return false, err
	}
	return ok, nil
}
