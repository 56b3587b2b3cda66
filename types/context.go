package types

import "time"

// Intent contexts carry entity references and rendering data only.
// Where a row has a version-like timestamp it is included, so that a repeated
// legitimate transition (vote, cancel, vote again) yields a different intent key
// while a redelivered message yields the same one.

type PostContext struct {
	PostID   string `json:"postId"`
	SourceID string `json:"sourceId"`
	AuthorID string `json:"authorId,omitempty"`
	ScoutID  string `json:"scoutId,omitempty"`
}

type CommentContext struct {
	CommentID    string `json:"commentId"`
	PostID       string `json:"postId"`
	UserID       string `json:"userId"`
	ParentID     string `json:"parentId,omitempty"`
	ReceiverID   string `json:"receiverId,omitempty"`
	PostSourceID string `json:"postSourceId,omitempty"`
}

// Milestone entities.
const (
	MilestonePost    = "post"
	MilestoneComment = "comment"
	MilestoneUser    = "user"
)

type MilestoneContext struct {
	Entity    string `json:"entity"`
	EntityID  string `json:"entityId"`
	OwnerID   string `json:"ownerId,omitempty"`
	PostID    string `json:"postId,omitempty"`
	Milestone int    `json:"milestone"`
}

type VoteContext struct {
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId,omitempty"`
	CommentID string    `json:"commentId,omitempty"`
	VotedAt   Timestamp `json:"votedAt"`
}

type ReportContext struct {
	Entity     string `json:"entity"`
	EntityID   string `json:"entityId"`
	PostID     string `json:"postId,omitempty"`
	ReporterID string `json:"reporterId"`
	OwnerID    string `json:"ownerId,omitempty"`
	Reason     string `json:"reason"`
}

type SourceRequestContext struct {
	RequestID string `json:"requestId"`
	SourceURL string `json:"sourceUrl"`
	UserID    string `json:"userId"`
	SourceID  string `json:"sourceId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type SquadMemberContext struct {
	SourceID     string `json:"sourceId"`
	UserID       string `json:"userId"`
	Role         string `json:"role,omitempty"`
	PreviousRole string `json:"previousRole,omitempty"`
}

type SourceContext struct {
	SourceID string `json:"sourceId"`
	Handle   string `json:"handle,omitempty"`
	Name     string `json:"name,omitempty"`
}

type UserContext struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type SubmissionContext struct {
	SubmissionID string `json:"submissionId"`
	URL          string `json:"url"`
	UserID       string `json:"userId"`
	Reason       string `json:"reason,omitempty"`
}

type MentionContext struct {
	CommentID       string `json:"commentId"`
	CommentByUserID string `json:"commentByUserId"`
	MentionedUserID string `json:"mentionedUserId"`
}

type FeatureContext struct {
	Feature string `json:"feature"`
	UserID  string `json:"userId"`
}

type StreakContext struct {
	UserID         string    `json:"userId"`
	CurrentStreak  int       `json:"currentStreak"`
	PreviousStreak int       `json:"previousStreak"`
	LastViewAt     Timestamp `json:"lastViewAt"`
}

type StreakResetContext struct {
	UserID         string    `json:"userId"`
	PreviousStreak int       `json:"previousStreak"`
	LastViewAt     time.Time `json:"lastViewAt"`
	// ResetDay is the local calendar day (YYYY-MM-DD) the reset applies to.
	ResetDay string `json:"resetDay"`
}

type CompanyContext struct {
	UserID    string `json:"userId"`
	CompanyID string `json:"companyId,omitempty"`
}

type DigestContext struct {
	UserID         string    `json:"userId"`
	SendType       string    `json:"sendType"`
	PreferredHour  int       `json:"preferredHour"`
	PreferredDay   int       `json:"preferredDay"`
	Timezone       string    `json:"timezone"`
	SendAt         time.Time `json:"sendAt"`
	PreviousSendAt time.Time `json:"previousSendAt"`
	BatchID        string    `json:"batchId"`
}
