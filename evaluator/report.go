package evaluator

import (
	"context"

	"github.com/chihqiang/dbxnotify/types"
)

func (e *evaluators) postReport(ctx context.Context, op types.Operation, _, after *types.PostReport) ([]types.Intent, error) {
	if op != types.OpCreate {
		return nil, nil
	}
	post, err := e.store.PostByID(ctx, after.PostID)
	if err != nil {
		return e.skipMissing(err, "post", after.PostID)
	}
	return one(types.EventPostReported, types.ReportContext{
		Entity:     types.MilestonePost,
		EntityID:   post.ID,
		PostID:     post.ID,
		ReporterID: after.UserID,
		OwnerID:    deref(post.AuthorID),
		Reason:     after.Reason,
	}), nil
}

func (e *evaluators) commentReport(ctx context.Context, op types.Operation, _, after *types.CommentReport) ([]types.Intent, error) {
	if op != types.OpCreate {
		return nil, nil
	}
	comment, err := e.store.CommentByID(ctx, after.CommentID)
	if err != nil {
		return e.skipMissing(err, "comment", after.CommentID)
	}
	return one(types.EventCommentReported, types.ReportContext{
		Entity:     types.MilestoneComment,
		EntityID:   comment.ID,
		PostID:     comment.PostID,
		ReporterID: after.UserID,
		OwnerID:    comment.UserID,
		Reason:     after.Reason,
	}), nil
}
