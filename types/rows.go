package types

// Row structs mirror the column names replicated by the CDC connector.
// Evaluators receive them already decoded, one struct per table.

type Post struct {
	ID                string    `json:"id"`
	ShortID           string    `json:"shortId"`
	Type              string    `json:"type"`
	Title             *string   `json:"title"`
	Summary           *string   `json:"summary"`
	Image             *string   `json:"image"`
	TagsStr           *string   `json:"tagsStr"`
	ReadTime          *int      `json:"readTime"`
	ContentCuration   []string  `json:"contentCuration"`
	SourceID          string    `json:"sourceId"`
	AuthorID          *string   `json:"authorId"`
	ScoutID           *string   `json:"scoutId"`
	Private           bool      `json:"private"`
	Visible           bool      `json:"visible"`
	Deleted           bool      `json:"deleted"`
	Banned            bool      `json:"banned"`
	Upvotes           int       `json:"upvotes"`
	Downvotes         int       `json:"downvotes"`
	Comments          int       `json:"comments"`
	CreatedAt         Timestamp `json:"createdAt"`
	MetadataChangedAt Timestamp `json:"metadataChangedAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	ParentID  *string   `json:"parentId"`
	Content   string    `json:"content"`
	Upvotes   int       `json:"upvotes"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Vote values stored on user_post and user_comment rows.
const (
	VoteDown = -1
	VoteNone = 0
	VoteUp   = 1
)

type UserPost struct {
	UserID  string    `json:"userId"`
	PostID  string    `json:"postId"`
	Vote    int       `json:"vote"`
	VotedAt Timestamp `json:"votedAt"`
	Hidden  bool      `json:"hidden"`
}

type UserComment struct {
	UserID    string    `json:"userId"`
	CommentID string    `json:"commentId"`
	Vote      int       `json:"vote"`
	VotedAt   Timestamp `json:"votedAt"`
}

type PostReport struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason"`
	Comment   *string   `json:"comment"`
	CreatedAt Timestamp `json:"createdAt"`
}

type CommentReport struct {
	CommentID string    `json:"commentId"`
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason"`
	Note      *string   `json:"note"`
	CreatedAt Timestamp `json:"createdAt"`
}

type SourceRequest struct {
	ID        string  `json:"id"`
	SourceURL string  `json:"sourceUrl"`
	UserID    string  `json:"userId"`
	Approved  *bool   `json:"approved"`
	Closed    bool    `json:"closed"`
	SourceID  *string `json:"sourceId"`
	Reason    *string `json:"reason"`
}

// Squad member roles.
const (
	RoleBlocked   = "blocked"
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type SourceMember struct {
	SourceID  string    `json:"sourceId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Source types.
const (
	SourceTypeMachine = "machine"
	SourceTypeSquad   = "squad"
)

type Source struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Handle  string `json:"handle"`
	Private bool   `json:"private"`
	Active  bool   `json:"active"`
}

type User struct {
	ID            string    `json:"id"`
	Username      *string   `json:"username"`
	Name          string    `json:"name"`
	Reputation    int       `json:"reputation"`
	InfoConfirmed bool      `json:"infoConfirmed"`
	Timezone      *string   `json:"timezone"`
	CreatedAt     Timestamp `json:"createdAt"`
}

// Submission statuses.
const (
	SubmissionStarted  = "NOT_STARTED"
	SubmissionAccepted = "ACCEPTED"
	SubmissionRejected = "REJECTED"
)

type Submission struct {
	ID     string  `json:"id"`
	URL    string  `json:"url"`
	UserID string  `json:"userId"`
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

type CommentMention struct {
	CommentID       string `json:"commentId"`
	CommentByUserID string `json:"commentByUserId"`
	MentionedUserID string `json:"mentionedUserId"`
}

type Feature struct {
	Feature string `json:"feature"`
	UserID  string `json:"userId"`
	Value   int    `json:"value"`
}

type UserStreak struct {
	UserID        string    `json:"userId"`
	CurrentStreak int       `json:"currentStreak"`
	TotalStreak   int       `json:"totalStreak"`
	MaxStreak     int       `json:"maxStreak"`
	LastViewAt    Timestamp `json:"lastViewAt"`
}

type UserCompany struct {
	UserID    string  `json:"userId"`
	CompanyID *string `json:"companyId"`
	Email     string  `json:"email"`
	Verified  bool    `json:"verified"`
}
