package evaluator

import (
	"context"
	"slices"

	"github.com/chihqiang/dbxnotify/types"
)

func postContext(p *types.Post) types.PostContext {
	return types.PostContext{
		PostID:   p.ID,
		SourceID: p.SourceID,
		AuthorID: deref(p.AuthorID),
		ScoutID:  deref(p.ScoutID),
	}
}

func publiclyVisible(p *types.Post) bool {
	return !p.Private && p.Visible && !p.Deleted
}

func (e *evaluators) post(ctx context.Context, op types.Operation, before, after *types.Post) ([]types.Intent, error) {
	switch op {
	case types.OpCreate:
		if publiclyVisible(after) {
			return one(types.EventPostAdded, postContext(after)), nil
		}
		return nil, nil
	case types.OpDelete:
		return one(types.EventPostDeleted, postContext(before)), nil
	}

	if before == nil {
		e.logger.Debug("post %s updated without previous image", after.ID)
		return nil, nil
	}
	var intents []types.Intent
	if publiclyVisible(after) && !publiclyVisible(before) && !before.Deleted {
		intents = append(intents, types.NewIntent(types.EventPostAdded, postContext(after)))
	}
	if !before.Banned && after.Banned {
		intents = append(intents, types.NewIntent(types.EventPostBanned, postContext(after)))
	}
	if !before.Deleted && after.Deleted {
		intents = append(intents, types.NewIntent(types.EventPostDeleted, postContext(after)))
	}
	if t, ok := crossedMilestone(before.Upvotes, after.Upvotes, UpvoteMilestones); ok {
		intents = append(intents, types.NewIntent(types.EventPostUpvoteMilestone, types.MilestoneContext{
			Entity:    types.MilestonePost,
			EntityID:  after.ID,
			OwnerID:   deref(after.AuthorID),
			PostID:    after.ID,
			Milestone: t,
		}))
	}
	if metadataChanged(before, after) {
		if _, err := e.store.StampPostMetadataChangedAt(ctx, after.ID, e.clock.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return intents, nil
}

func metadataChanged(before, after *types.Post) bool {
	return !equalPtr(before.Title, after.Title) ||
		!equalPtr(before.Summary, after.Summary) ||
		!equalPtr(before.Image, after.Image) ||
		!equalPtr(before.TagsStr, after.TagsStr) ||
		!equalPtr(before.ReadTime, after.ReadTime) ||
		!slices.Equal(before.ContentCuration, after.ContentCuration)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
