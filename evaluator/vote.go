package evaluator

import (
	"context"

	"github.com/chihqiang/dbxnotify/types"
)

// voteChange resolves the vote value before and after a change. A delete means
// the vote went back to none; a missing previous image counts as none.
func voteChange(op types.Operation, before, after *int) (prev, next int) {
	if before != nil {
		prev = *before
	}
	if after != nil && op != types.OpDelete {
		next = *after
	}
	return prev, next
}

// voteIntents maps a vote transition to intents. up→down yields the cancel and
// the new vote.
func voteIntents(prev, next int, canceledUp, canceledDown, up, down types.DomainEventTag, ctx types.VoteContext) []types.Intent {
	if prev == next {
		return nil
	}
	var intents []types.Intent
	switch prev {
	case types.VoteUp:
		if canceledUp != "" {
			intents = append(intents, types.NewIntent(canceledUp, ctx))
		}
	case types.VoteDown:
		if canceledDown != "" {
			intents = append(intents, types.NewIntent(canceledDown, ctx))
		}
	}
	switch next {
	case types.VoteUp:
		if up != "" {
			intents = append(intents, types.NewIntent(up, ctx))
		}
	case types.VoteDown:
		if down != "" {
			intents = append(intents, types.NewIntent(down, ctx))
		}
	}
	return intents
}

func (e *evaluators) userPost(_ context.Context, op types.Operation, before, after *types.UserPost) ([]types.Intent, error) {
	var prevVote, nextVote *int
	row := after
	if before != nil {
		prevVote = &before.Vote
	}
	if after != nil {
		nextVote = &after.Vote
	} else {
		row = before
	}
	prev, next := voteChange(op, prevVote, nextVote)
	return voteIntents(prev, next,
		types.EventPostUpvoteCanceled, types.EventPostDownvoteCanceled,
		types.EventPostUpvoted, types.EventPostDownvoted,
		types.VoteContext{UserID: row.UserID, PostID: row.PostID, VotedAt: row.VotedAt},
	), nil
}

func (e *evaluators) userComment(_ context.Context, op types.Operation, before, after *types.UserComment) ([]types.Intent, error) {
	var prevVote, nextVote *int
	row := after
	if before != nil {
		prevVote = &before.Vote
	}
	if after != nil {
		nextVote = &after.Vote
	} else {
		row = before
	}
	prev, next := voteChange(op, prevVote, nextVote)
	return voteIntents(prev, next,
		types.EventCommentUpvoteCanceled, "",
		types.EventCommentUpvoted, "",
		types.VoteContext{UserID: row.UserID, CommentID: row.CommentID, VotedAt: row.VotedAt},
	), nil
}
