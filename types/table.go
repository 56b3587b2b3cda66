package types

// Table is the closed set of data sources the router knows about.
// Names not in the set parse to TableUnknown, which no evaluator handles.
type Table string

const (
	TableUnknown        Table = ""
	TablePost           Table = "post"
	TableComment        Table = "comment"
	TableUserPost       Table = "user_post"
	TableUserComment    Table = "user_comment"
	TablePostReport     Table = "post_report"
	TableCommentReport  Table = "comment_report"
	TableSourceRequest  Table = "source_request"
	TableSourceMember   Table = "source_member"
	TableSource         Table = "source"
	TableUser           Table = "user"
	TableSubmission     Table = "submission"
	TableCommentMention Table = "comment_mention"
	TableFeature        Table = "feature"
	TableUserStreak     Table = "user_streak"
	TableUserCompany    Table = "user_company"
)

var knownTables = map[string]Table{
	string(TablePost):           TablePost,
	string(TableComment):        TableComment,
	string(TableUserPost):       TableUserPost,
	string(TableUserComment):    TableUserComment,
	string(TablePostReport):     TablePostReport,
	string(TableCommentReport):  TableCommentReport,
	string(TableSourceRequest):  TableSourceRequest,
	string(TableSourceMember):   TableSourceMember,
	string(TableSource):         TableSource,
	string(TableUser):           TableUser,
	string(TableSubmission):     TableSubmission,
	string(TableCommentMention): TableCommentMention,
	string(TableFeature):        TableFeature,
	string(TableUserStreak):     TableUserStreak,
	string(TableUserCompany):    TableUserCompany,
}

// ParseTable maps a source table name to its identity.
func ParseTable(name string) Table {
	if t, ok := knownTables[name]; ok {
		return t
	}
	return TableUnknown
}

// Known reports whether t is a member of the closed set.
func (t Table) Known() bool {
	return t != TableUnknown
}
