package evaluator

import (
	"context"

	"github.com/chihqiang/dbxnotify/types"
)

func (e *evaluators) comment(ctx context.Context, op types.Operation, before, after *types.Comment) ([]types.Intent, error) {
	switch op {
	case types.OpCreate:
		return e.commentCreated(ctx, after)
	case types.OpDelete:
		if _, err := e.store.DeleteCommentMentions(ctx, before.ID); err != nil {
			return nil, err
		}
		return one(types.EventCommentDeleted, types.CommentContext{
			CommentID: before.ID,
			PostID:    before.PostID,
			UserID:    before.UserID,
			ParentID:  deref(before.ParentID),
		}), nil
	}
	if before == nil {
		return nil, nil
	}
	if t, ok := crossedMilestone(before.Upvotes, after.Upvotes, UpvoteMilestones); ok {
		return one(types.EventCommentUpvoteMilestone, types.MilestoneContext{
			Entity:    types.MilestoneComment,
			EntityID:  after.ID,
			OwnerID:   after.UserID,
			PostID:    after.PostID,
			Milestone: t,
		}), nil
	}
	return nil, nil
}

func (e *evaluators) commentCreated(ctx context.Context, c *types.Comment) ([]types.Intent, error) {
	post, err := e.store.PostByID(ctx, c.PostID)
	if err != nil {
		return e.skipMissing(err, "post", c.PostID)
	}
	cc := types.CommentContext{
		CommentID:    c.ID,
		PostID:       c.PostID,
		UserID:       c.UserID,
		PostSourceID: post.SourceID,
	}
	if c.ParentID == nil {
		cc.ReceiverID = deref(post.AuthorID)
		if cc.ReceiverID == "" {
			cc.ReceiverID = deref(post.ScoutID)
		}
		return one(types.EventPostCommented, cc), nil
	}
	parent, err := e.store.CommentByID(ctx, *c.ParentID)
	if err != nil {
		return e.skipMissing(err, "comment", *c.ParentID)
	}
	cc.ParentID = parent.ID
	cc.ReceiverID = parent.UserID
	return one(types.EventCommentCommented, cc), nil
}
