package evaluator

import (
	"context"

	"github.com/chihqiang/dbxnotify/types"
)

func (e *evaluators) submission(_ context.Context, op types.Operation, before, after *types.Submission) ([]types.Intent, error) {
	if op != types.OpUpdate || before == nil || before.Status == after.Status {
		return nil, nil
	}
	ctx := types.SubmissionContext{SubmissionID: after.ID, URL: after.URL, UserID: after.UserID}
	switch after.Status {
	case types.SubmissionAccepted:
		return one(types.EventSubmissionAccepted, ctx), nil
	case types.SubmissionRejected:
		ctx.Reason = deref(after.Reason)
		return one(types.EventSubmissionRejected, ctx), nil
	}
	return nil, nil
}

func (e *evaluators) commentMention(_ context.Context, op types.Operation, _, after *types.CommentMention) ([]types.Intent, error) {
	if op != types.OpCreate || after.MentionedUserID == after.CommentByUserID {
		return nil, nil
	}
	return one(types.EventCommentMention, types.MentionContext{
		CommentID:       after.CommentID,
		CommentByUserID: after.CommentByUserID,
		MentionedUserID: after.MentionedUserID,
	}), nil
}

func (e *evaluators) feature(_ context.Context, op types.Operation, _, after *types.Feature) ([]types.Intent, error) {
	if op != types.OpCreate {
		return nil, nil
	}
	return one(types.EventFeatureAccessGranted, types.FeatureContext{Feature: after.Feature, UserID: after.UserID}), nil
}
