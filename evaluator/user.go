package evaluator

import (
	"context"

	"github.com/chihqiang/dbxnotify/types"
)

func (e *evaluators) user(_ context.Context, op types.Operation, before, after *types.User) ([]types.Intent, error) {
	switch op {
	case types.OpCreate:
		return one(types.EventUserCreated, types.UserContext{UserID: after.ID, Username: deref(after.Username)}), nil
	case types.OpDelete:
		return one(types.EventUserDeleted, types.UserContext{UserID: before.ID, Username: deref(before.Username)}), nil
	}
	if before == nil {
		return nil, nil
	}
	var intents []types.Intent
	if t, ok := crossedMilestone(before.Reputation, after.Reputation, ReputationMilestones); ok {
		intents = append(intents, types.NewIntent(types.EventUserReputationMilestone, types.MilestoneContext{
			Entity:    types.MilestoneUser,
			EntityID:  after.ID,
			OwnerID:   after.ID,
			Milestone: t,
		}))
	}
	if rose(&before.InfoConfirmed, after.InfoConfirmed) {
		intents = append(intents, types.NewIntent(types.EventUserInfoConfirmed, types.UserContext{
			UserID:   after.ID,
			Username: deref(after.Username),
		}))
	}
	return intents, nil
}

func (e *evaluators) userStreak(_ context.Context, op types.Operation, before, after *types.UserStreak) ([]types.Intent, error) {
	if op != types.OpUpdate || before == nil || after.CurrentStreak <= before.CurrentStreak {
		return nil, nil
	}
	return one(types.EventUserStreakUpdated, types.StreakContext{
		UserID:         after.UserID,
		CurrentStreak:  after.CurrentStreak,
		PreviousStreak: before.CurrentStreak,
		LastViewAt:     after.LastViewAt,
	}), nil
}

func (e *evaluators) userCompany(_ context.Context, op types.Operation, before, after *types.UserCompany) ([]types.Intent, error) {
	if op != types.OpUpdate || before == nil || !rose(&before.Verified, after.Verified) {
		return nil, nil
	}
	return one(types.EventUserCompanyApproved, types.CompanyContext{
		UserID:    after.UserID,
		CompanyID: deref(after.CompanyID),
	}), nil
}
