package evaluator

import (
	"context"

	"github.com/chihqiang/dbxnotify/types"
)

func (e *evaluators) sourceRequest(_ context.Context, op types.Operation, before, after *types.SourceRequest) ([]types.Intent, error) {
	switch op {
	case types.OpCreate:
		return one(types.EventSourceRequestSubmitted, types.SourceRequestContext{
			RequestID: after.ID,
			SourceURL: after.SourceURL,
			UserID:    after.UserID,
		}), nil
	case types.OpUpdate:
		if before == nil || before.Closed || !after.Closed {
			return nil, nil
		}
		ctx := types.SourceRequestContext{
			RequestID: after.ID,
			SourceURL: after.SourceURL,
			UserID:    after.UserID,
		}
		if deref(after.Approved) {
			ctx.SourceID = deref(after.SourceID)
			return one(types.EventSourceRequestApproved, ctx), nil
		}
		ctx.Reason = deref(after.Reason)
		return one(types.EventSourceRequestDeclined, ctx), nil
	}
	return nil, nil
}

func (e *evaluators) sourceMember(_ context.Context, op types.Operation, before, after *types.SourceMember) ([]types.Intent, error) {
	switch op {
	case types.OpCreate:
		if after.Role == types.RoleBlocked {
			return nil, nil
		}
		return one(types.EventSquadMemberJoined, types.SquadMemberContext{
			SourceID: after.SourceID,
			UserID:   after.UserID,
			Role:     after.Role,
		}), nil
	case types.OpDelete:
		if before.Role == types.RoleBlocked {
			return nil, nil
		}
		return one(types.EventSquadMemberLeft, types.SquadMemberContext{
			SourceID: before.SourceID,
			UserID:   before.UserID,
			Role:     before.Role,
		}), nil
	}
	if before == nil || before.Role == after.Role {
		return nil, nil
	}
	ctx := types.SquadMemberContext{
		SourceID:     after.SourceID,
		UserID:       after.UserID,
		Role:         after.Role,
		PreviousRole: before.Role,
	}
	if after.Role == types.RoleBlocked {
		return one(types.EventSquadMemberBlocked, ctx), nil
	}
	return one(types.EventSquadMemberRoleChanged, ctx), nil
}

func (e *evaluators) source(_ context.Context, op types.Operation, before, after *types.Source) ([]types.Intent, error) {
	switch op {
	case types.OpUpdate:
		if before == nil || after.Type != types.SourceTypeSquad {
			return nil, nil
		}
		if before.Private && !after.Private {
			return one(types.EventSquadMadePublic, types.SourceContext{
				SourceID: after.ID,
				Handle:   after.Handle,
				Name:     after.Name,
			}), nil
		}
	case types.OpDelete:
		if before.Type == types.SourceTypeSquad {
			return one(types.EventSquadDeleted, types.SourceContext{
				SourceID: before.ID,
				Handle:   before.Handle,
				Name:     before.Name,
			}), nil
		}
	}
	return nil, nil
}
