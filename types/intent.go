package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainEventTag names a notification kind. The set is closed: evaluators only
// emit the tags declared here.
type DomainEventTag string

const (
	EventPostAdded               DomainEventTag = "post_added"
	EventPostBanned              DomainEventTag = "post_banned"
	EventPostDeleted             DomainEventTag = "post_deleted"
	EventPostUpvoteMilestone     DomainEventTag = "post_upvote_milestone"
	EventPostCommented           DomainEventTag = "post_commented"
	EventCommentCommented        DomainEventTag = "comment_commented"
	EventCommentUpvoteMilestone  DomainEventTag = "comment_upvote_milestone"
	EventCommentDeleted          DomainEventTag = "comment_deleted"
	EventPostUpvoted             DomainEventTag = "post_upvoted"
	EventPostUpvoteCanceled      DomainEventTag = "post_upvote_canceled"
	EventPostDownvoted           DomainEventTag = "post_downvoted"
	EventPostDownvoteCanceled    DomainEventTag = "post_downvote_canceled"
	EventCommentUpvoted          DomainEventTag = "comment_upvoted"
	EventCommentUpvoteCanceled   DomainEventTag = "comment_upvote_canceled"
	EventPostReported            DomainEventTag = "post_reported"
	EventCommentReported         DomainEventTag = "comment_reported"
	EventSourceRequestSubmitted  DomainEventTag = "source_request_submitted"
	EventSourceRequestApproved   DomainEventTag = "source_request_approved"
	EventSourceRequestDeclined   DomainEventTag = "source_request_declined"
	EventSquadMemberJoined       DomainEventTag = "squad_member_joined"
	EventSquadMemberRoleChanged  DomainEventTag = "squad_member_role_changed"
	EventSquadMemberBlocked      DomainEventTag = "squad_member_blocked"
	EventSquadMemberLeft         DomainEventTag = "squad_member_left"
	EventSquadMadePublic         DomainEventTag = "squad_made_public"
	EventSquadDeleted            DomainEventTag = "squad_deleted"
	EventUserCreated             DomainEventTag = "user_created"
	EventUserReputationMilestone DomainEventTag = "user_reputation_milestone"
	EventUserInfoConfirmed       DomainEventTag = "user_info_confirmed"
	EventUserDeleted             DomainEventTag = "user_deleted"
	EventSubmissionAccepted      DomainEventTag = "submission_accepted"
	EventSubmissionRejected      DomainEventTag = "submission_rejected"
	EventCommentMention          DomainEventTag = "comment_mention"
	EventFeatureAccessGranted    DomainEventTag = "feature_access_granted"
	EventUserStreakUpdated       DomainEventTag = "user_streak_updated"
	EventUserStreakReset         DomainEventTag = "user_streak_reset"
	EventUserCompanyApproved     DomainEventTag = "user_company_approved"
	EventDigestGenerate          DomainEventTag = "digest_generate"
)

// Intent is the decision of an evaluator: emit Type with Context.
type Intent struct {
	Type    DomainEventTag `json:"type"`
	Context any            `json:"context"`
}

// NewIntent builds an intent.
func NewIntent(tag DomainEventTag, ctx any) Intent {
	return Intent{Type: tag, Context: ctx}
}

// Key identifies the intent by content. Emitting two intents with the same key
// must have the effect of emitting one.
func (i Intent) Key() (string, error) {
	ctx, err := json.Marshal(i.Context)
	if err != nil {
		return "", fmt.Errorf("marshal %s context: %w", i.Type, err)
	}
	h := sha256.New()
	h.Write([]byte(i.Type))
	h.Write([]byte{0})
	h.Write(ctx)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Message is the JSON document handed to the notification collaborator.
type Message struct {
	Key     string          `json:"key"`
	Type    DomainEventTag  `json:"type"`
	Context json.RawMessage `json:"context"`
}

// Encode renders the intent into its published form.
func (i Intent) Encode() (Message, error) {
	key, err := i.Key()
	if err != nil {
		return Message{}, err
	}
	ctx, err := json.Marshal(i.Context)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s context: %w", i.Type, err)
	}
	return Message{Key: key, Type: i.Type, Context: ctx}, nil
}
