package datastore

import "time"

// Post is the subset of the post table evaluators read and stamp.
type Post struct {
	ID                string `gorm:"primaryKey"`
	SourceID          string `gorm:"index"`
	AuthorID          *string
	ScoutID           *string
	Upvotes           int
	Deleted           bool
	MetadataChangedAt *time.Time
	CreatedAt         time.Time
}

func (Post) TableName() string { return "post" }

type Comment struct {
	ID        string `gorm:"primaryKey"`
	PostID    string `gorm:"index"`
	UserID    string
	ParentID  *string
	CreatedAt time.Time
}

func (Comment) TableName() string { return "comment" }

type Source struct {
	ID      string `gorm:"primaryKey"`
	Type    string
	Name    string
	Handle  string
	Private bool
}

func (Source) TableName() string { return "source" }

type User struct {
	ID       string `gorm:"primaryKey"`
	Username *string
	Timezone *string
}

func (User) TableName() string { return "user" }

type CommentMention struct {
	CommentID       string `gorm:"primaryKey"`
	MentionedUserID string `gorm:"primaryKey"`
	CommentByUserID string
}

func (CommentMention) TableName() string { return "comment_mention" }

// UserStreak is the reading streak of one user. Reset by the streak cron only.
type UserStreak struct {
	UserID        string `gorm:"primaryKey"`
	CurrentStreak int
	TotalStreak   int
	MaxStreak     int
	LastViewAt    *time.Time `gorm:"index"`
	UpdatedAt     time.Time
}

func (UserStreak) TableName() string { return "user_streak" }

// StreakActionRecover is the action type of a streak recovery.
const StreakActionRecover = "recover"

// UserStreakAction is append-only.
type UserStreakAction struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"index:idx_streak_action_user,priority:1"`
	Type      string
	CreatedAt time.Time `gorm:"index:idx_streak_action_user,priority:2"`
}

func (UserStreakAction) TableName() string { return "user_streak_action" }

// Digest send types.
const (
	SendTypeWorkdays = "workdays"
	SendTypeDaily    = "daily"
	SendTypeWeekly   = "weekly"
)

// DigestSubscription is a user's personalized digest schedule.
// PreferredDay uses Sunday=0.
type DigestSubscription struct {
	UserID            string `gorm:"primaryKey"`
	PreferredHour     int
	PreferredDay      int
	PreferredTimezone string
	SendType          string `gorm:"index"`
	LastSendDate      *time.Time
}

func (DigestSubscription) TableName() string { return "user_personalized_digest" }

// DigestBatch records one allocated digest batch id.
type DigestBatch struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
}

func (DigestBatch) TableName() string { return "digest_batch" }

// NotificationIntent is a persisted intent. Key is unique.
type NotificationIntent struct {
	Key       string `gorm:"primaryKey"`
	Type      string `gorm:"index"`
	Context   string
	CreatedAt time.Time
}

func (NotificationIntent) TableName() string { return "notification_intent" }

// StreakRow is a streak joined with its owner's timezone.
type StreakRow struct {
	UserID        string
	CurrentStreak int
	LastViewAt    time.Time
	Timezone      string
}

// Models lists every table the store migrates.
func Models() []any {
	return []any{
		&Post{}, &Comment{}, &Source{}, &User{}, &CommentMention{},
		&UserStreak{}, &UserStreakAction{}, &DigestSubscription{},
		&DigestBatch{}, &NotificationIntent{},
	}
}
